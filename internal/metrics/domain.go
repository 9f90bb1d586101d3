package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain-level Prometheus metrics. These are defined in a standalone package
// to avoid import cycles between the services and HTTP packages.

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secure_tokens_issued_total",
		Help: "Secure tokens emitidos por tipo",
	}, []string{"kind"})

	TokensConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secure_tokens_consumed_total",
		Help: "Intentos de consumo de secure tokens por tipo y resultado",
	}, []string{"kind", "result"}) // result: ok|invalid

	TransferTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "server_transfer_transitions_total",
		Help: "Transiciones de estado de transfers por estado destino",
	}, []string{"status"})

	DaemonCredentialsSigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daemon_credentials_signed_total",
		Help: "Credenciales firmadas hacia los daemons",
	})

	DaemonProxyErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daemon_proxy_errors_total",
		Help: "Errores al hablar con un daemon por node",
	}, []string{"node"})
)

// RegisterDomain registers the domain metrics on the given registry (or default if nil).
func RegisterDomain(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokensIssued, TokensConsumed, TransferTransitions, DaemonCredentialsSigned, DaemonProxyErrors,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
