package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

func testContextFor(t *testing.T, daemonURL string) *access.Context {
	t.Helper()
	u, err := url.Parse(daemonURL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())
	return &access.Context{
		User:           &repository.User{ID: "user-1"},
		Server:         &repository.Server{UUID: "srv-1"},
		Node:           &repository.Node{ID: "node-1", FQDN: u.Hostname(), Scheme: u.Scheme, DaemonListen: port},
		NodeConnection: connA,
		Permissions:    []string{"file.read"},
	}
}

func TestListDirectory_OK(t *testing.T) {
	t.Parallel()
	signer := NewSigner("https://panel.example.com")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/servers/srv-1/files/list") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("directory") != "/logs" {
			t.Errorf("directory param missing: %s", r.URL.RawQuery)
		}

		// el node valida la firma con su propio secreto
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := signer.Verify(connA, auth)
		if err != nil {
			t.Errorf("node-side verify failed: %v", err)
		} else if claims.ServerUUID != "srv-1" {
			t.Errorf("claims server mismatch: %q", claims.ServerUUID)
		}

		_ = json.NewEncoder(w).Encode([]FileEntry{
			{Name: "latest.log", File: true, Size: 120},
			{Name: "archive", Directory: true},
		})
	}))
	defer srv.Close()

	c := NewClient(signer, srv.Client())
	entries, err := c.ListDirectory(context.Background(), testContextFor(t, srv.URL), "/logs")
	if err != nil {
		t.Fatalf("ListDirectory err: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "latest.log" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListDirectory_UpstreamStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(NewSigner("https://panel.example.com"), srv.Client())
	_, err := c.ListDirectory(context.Background(), testContextFor(t, srv.URL), "/")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if uerr.Status != http.StatusForbidden || uerr.NodeID != "node-1" {
		t.Fatalf("upstream error context: %+v", uerr)
	}
	// el mensaje lleva ids para diagnóstico pero jamás el credential
	if strings.Contains(uerr.Error(), "Bearer") {
		t.Fatal("upstream error must not carry credentials")
	}
}

func TestListDirectory_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // cerrado a propósito

	c := NewClient(NewSigner("https://panel.example.com"), nil)
	_, err := c.ListDirectory(context.Background(), testContextFor(t, srv.URL), "/")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
