// Package daemon contains the panel side of the node daemon integration:
// the delegation credential signer and the HTTP client the panel uses to
// proxy requests to a node on a user's behalf.
package daemon

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

// DefaultCredentialTTL is deliberately short: once a signed credential is
// handed to a browser there is no server-side revocation, expiry is the only
// mitigation. Treat this as a security parameter, not a UX knob.
const DefaultCredentialTTL = 15 * time.Minute

// DelegationClaims are the claims embedded in a signed delegation
// credential. The node re-validates all of them; nothing here is
// client-editable.
type DelegationClaims struct {
	ServerUUID   string   `json:"server_uuid"`
	UserID       string   `json:"user_id,omitempty"`
	Permissions  []string `json:"permissions"`
	IdentifiedBy string   `json:"identified_by"`
	jwtv5.RegisteredClaims
}

// Signer mints node-scoped delegation credentials. The signing key is the
// target node's own shared secret, never a panel-global one, so a credential
// signed for node A is garbage to node B.
type Signer struct {
	issuer string
	now    func() time.Time
}

// NewSigner creates a Signer. issuer is the panel's identity string placed
// in the iss claim (typically the panel base URL).
func NewSigner(issuer string) *Signer {
	return &Signer{issuer: issuer, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign produces a compact signed credential for the node owning conn.
// ttl <= 0 falls back to DefaultCredentialTTL.
func (s *Signer) Sign(conn *repository.NodeConnection, claims DelegationClaims, ttl time.Duration) (string, error) {
	if conn == nil || conn.TokenSecret == "" {
		return "", fmt.Errorf("daemon: node connection has no secret")
	}
	if claims.ServerUUID == "" {
		return "", fmt.Errorf("daemon: claims missing server uuid")
	}
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}

	now := s.now().UTC()
	claims.RegisteredClaims = jwtv5.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.ServerUUID,
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(conn.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("daemon: sign credential: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a credential against a node's secret. Used by
// the node-callback middleware and by tests; a real node daemon performs the
// equivalent check on its side.
func (s *Signer) Verify(conn *repository.NodeConnection, credential string) (*DelegationClaims, error) {
	claims := &DelegationClaims{}
	_, err := jwtv5.ParseWithClaims(credential, claims,
		func(t *jwtv5.Token) (any, error) {
			return []byte(conn.TokenSecret), nil
		},
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("daemon: invalid credential: %w", err)
	}
	return claims, nil
}
