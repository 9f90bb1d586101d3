package daemon

import (
	"testing"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

var (
	connA = &repository.NodeConnection{TokenID: "tidA", TokenSecret: "secret-for-node-a"}
	connB = &repository.NodeConnection{TokenID: "tidB", TokenSecret: "secret-for-node-b"}
)

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewSigner("https://panel.example.com")

	signed, err := s.Sign(connA, DelegationClaims{
		ServerUUID:   "srv-1",
		UserID:       "user-1",
		Permissions:  []string{"websocket.connect"},
		IdentifiedBy: "user-1:srv-1",
	}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}

	claims, err := s.Verify(connA, signed)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.ServerUUID != "srv-1" || claims.UserID != "user-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "websocket.connect" {
		t.Fatalf("permissions mismatch: %v", claims.Permissions)
	}
	if claims.Subject != "srv-1" {
		t.Fatalf("subject should be the server uuid, got %q", claims.Subject)
	}
}

func TestVerify_RejectsCredentialForOtherNode(t *testing.T) {
	t.Parallel()
	s := NewSigner("https://panel.example.com")

	signed, err := s.Sign(connA, DelegationClaims{
		ServerUUID:  "srv-1",
		Permissions: []string{"file.read"},
	}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// nodo B valida con SU secreto: la firma no matchea
	if _, err := s.Verify(connB, signed); err == nil {
		t.Fatal("credential signed for node A must be rejected by node B")
	}
}

func TestVerify_RejectsExpired(t *testing.T) {
	t.Parallel()
	base := time.Now()
	clock := base
	s := NewSigner("https://panel.example.com").WithClock(func() time.Time { return clock })

	signed, err := s.Sign(connA, DelegationClaims{ServerUUID: "srv-1"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	clock = base.Add(2 * time.Minute)
	if _, err := s.Verify(connA, signed); err == nil {
		t.Fatal("expired credential must be rejected")
	}
}

func TestVerify_RejectsWrongIssuer(t *testing.T) {
	t.Parallel()
	signed, err := NewSigner("https://evil.example.com").Sign(connA, DelegationClaims{ServerUUID: "srv-1"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewSigner("https://panel.example.com").Verify(connA, signed); err == nil {
		t.Fatal("credential from a different issuer must be rejected")
	}
}

func TestSign_RequiresSecretAndServer(t *testing.T) {
	t.Parallel()
	s := NewSigner("https://panel.example.com")

	if _, err := s.Sign(&repository.NodeConnection{}, DelegationClaims{ServerUUID: "srv-1"}, time.Minute); err == nil {
		t.Fatal("expected error without node secret")
	}
	if _, err := s.Sign(connA, DelegationClaims{}, time.Minute); err == nil {
		t.Fatal("expected error without server uuid")
	}
}

func TestConsoleCredential_SocketURL(t *testing.T) {
	t.Parallel()
	s := NewSigner("https://panel.example.com")

	actx := &access.Context{
		User:           &repository.User{ID: "user-1"},
		Server:         &repository.Server{UUID: "srv-1"},
		Node:           &repository.Node{ID: "node-1", FQDN: "n1.example.com", Scheme: "https", DaemonListen: 8080},
		NodeConnection: connA,
		Permissions:    []string{"websocket.connect"},
	}

	cred, err := s.ConsoleCredential(actx, 0)
	if err != nil {
		t.Fatalf("ConsoleCredential err: %v", err)
	}
	want := "wss://n1.example.com:8080/api/servers/srv-1/ws"
	if cred.SocketURL != want {
		t.Fatalf("socket url: got %q want %q", cred.SocketURL, want)
	}

	claims, err := s.Verify(connA, cred.Token)
	if err != nil {
		t.Fatalf("minted console token does not verify: %v", err)
	}
	if claims.IdentifiedBy != "user-1:srv-1" {
		t.Fatalf("identified_by mismatch: %q", claims.IdentifiedBy)
	}

	// nodo http -> ws
	actx.Node = &repository.Node{ID: "node-2", FQDN: "n2.example.com", Scheme: "http", DaemonListen: 8080}
	cred, err = s.ConsoleCredential(actx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cred.SocketURL != "ws://n2.example.com:8080/api/servers/srv-1/ws" {
		t.Fatalf("plain ws url mismatch: %q", cred.SocketURL)
	}
}
