// Package email construye y envía los correos del panel: verificación de
// cuenta y reset de password. Los templates son multipart (txt + html) y el
// link incluye el valor del token en claro; por eso ninguna ruta de logging
// de este package registra el cuerpo del mensaje.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	texttpl "text/template"

	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

type mailVars struct {
	Username string
	AppName  string
	Link     string
	TTL      string
}

var (
	verifyHTML = template.Must(template.New("verify_html").Parse(
		`<p>Hola {{.Username}},</p>
<p>Confirmá tu dirección de email para activar tu cuenta en {{.AppName}}:</p>
<p><a href="{{.Link}}">Verificar email</a></p>
<p>El link vence en {{.TTL}}. Si no creaste esta cuenta, ignorá este correo.</p>`))
	verifyTXT = texttpl.Must(texttpl.New("verify_txt").Parse(
		`Hola {{.Username}},

Confirmá tu dirección de email para activar tu cuenta en {{.AppName}}:

{{.Link}}

El link vence en {{.TTL}}. Si no creaste esta cuenta, ignorá este correo.`))

	resetHTML = template.Must(template.New("reset_html").Parse(
		`<p>Hola {{.Username}},</p>
<p>Recibimos un pedido para restablecer tu password en {{.AppName}}:</p>
<p><a href="{{.Link}}">Restablecer password</a></p>
<p>El link vence en {{.TTL}} y sirve una sola vez. Si no fuiste vos, ignorá este correo.</p>`))
	resetTXT = texttpl.Must(texttpl.New("reset_txt").Parse(
		`Hola {{.Username}},

Recibimos un pedido para restablecer tu password en {{.AppName}}:

{{.Link}}

El link vence en {{.TTL}} y sirve una sola vez. Si no fuiste vos, ignorá este correo.`))
)

// Mailer arma los correos de cuenta y los despacha por un Sender.
type Mailer struct {
	sender   Sender
	panelURL string // base pública del panel, sin slash final
	appName  string
}

func NewMailer(sender Sender, panelURL, appName string) *Mailer {
	if appName == "" {
		appName = "Quarterdeck"
	}
	return &Mailer{sender: sender, panelURL: panelURL, appName: appName}
}

func (m *Mailer) SendEmailVerification(ctx context.Context, to, username, token string, expires time.Time) error {
	link := fmt.Sprintf("%s/api/auth/email/verify?token=%s", m.panelURL, url.QueryEscape(token))
	return m.send(ctx, to, fmt.Sprintf("Verificá tu email - %s", m.appName), verifyHTML, verifyTXT, mailVars{
		Username: username,
		AppName:  m.appName,
		Link:     link,
		TTL:      ttlString(expires),
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, token string, expires time.Time) error {
	link := fmt.Sprintf("%s/auth/password/reset?token=%s", m.panelURL, url.QueryEscape(token))
	return m.send(ctx, to, fmt.Sprintf("Restablecer password - %s", m.appName), resetHTML, resetTXT, mailVars{
		Username: username,
		AppName:  m.appName,
		Link:     link,
		TTL:      ttlString(expires),
	})
}

func (m *Mailer) send(ctx context.Context, to, subject string, h *template.Template, t *texttpl.Template, vars mailVars) error {
	var htmlBuf, txtBuf bytes.Buffer
	if err := h.Execute(&htmlBuf, vars); err != nil {
		return fmt.Errorf("email: render html: %w", err)
	}
	if err := t.Execute(&txtBuf, vars); err != nil {
		return fmt.Errorf("email: render text: %w", err)
	}
	if err := m.sender.Send(to, subject, htmlBuf.String(), txtBuf.String()); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	logger.From(ctx).Info("account email sent",
		logger.Component("email"), logger.String("subject", subject))
	return nil
}

func ttlString(expires time.Time) string {
	d := time.Until(expires).Round(time.Minute)
	if d < time.Minute {
		d = time.Minute
	}
	return d.String()
}

// LogMailer es el notifier de desarrollo: registra que el correo saldría,
// sin el token ni el cuerpo.
type LogMailer struct{}

func (LogMailer) SendEmailVerification(ctx context.Context, to, _, _ string, expires time.Time) error {
	logger.From(ctx).Info("dev mailer: verification email suppressed",
		logger.Component("email"), logger.String("to", to))
	return nil
}

func (LogMailer) SendPasswordReset(ctx context.Context, to, _, _ string, expires time.Time) error {
	logger.From(ctx).Info("dev mailer: reset email suppressed",
		logger.Component("email"), logger.String("to", to))
	return nil
}
