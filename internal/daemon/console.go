package daemon

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/access"
)

// ConsoleCredential is the pair the browser needs to open a console
// websocket directly against the node.
type ConsoleCredential struct {
	Token     string
	SocketURL string
	ExpiresAt time.Time
}

// ConsoleCredential mints a websocket delegation credential from a resolved
// access context. The permission set embedded is exactly the context's
// checked set.
func (s *Signer) ConsoleCredential(actx *access.Context, ttl time.Duration) (*ConsoleCredential, error) {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	claims := DelegationClaims{
		ServerUUID:   actx.Server.UUID,
		UserID:       actx.User.ID,
		Permissions:  actx.Permissions,
		IdentifiedBy: actx.User.ID + ":" + actx.Server.UUID,
	}
	token, err := s.Sign(actx.NodeConnection, claims, ttl)
	if err != nil {
		return nil, err
	}
	socket := fmt.Sprintf("%s://%s:%d/api/servers/%s/ws",
		actx.Node.SocketScheme(), actx.Node.FQDN, actx.Node.DaemonListen, actx.Server.UUID)

	return &ConsoleCredential{
		Token:     token,
		SocketURL: socket,
		ExpiresAt: s.now().UTC().Add(ttl),
	}, nil
}
