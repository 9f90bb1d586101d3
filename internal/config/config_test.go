package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	p := writeConfig(t, "daemon:\n  issuer: https://panel.example.com\nemail:\n  base_url: https://panel.example.com\n  dev_mode: true\n")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" || c.Cache.Kind != "memory" {
		t.Errorf("drivers = %q / %q", c.Storage.Driver, c.Cache.Kind)
	}
	if c.Tokens.VerifyTTL != 48*time.Hour || c.Tokens.ResetTTL != time.Hour || c.Tokens.ImpersonationTTL != 10*time.Minute {
		t.Errorf("token TTLs = %v / %v / %v", c.Tokens.VerifyTTL, c.Tokens.ResetTTL, c.Tokens.ImpersonationTTL)
	}
	if c.Daemon.CredentialTTL != 15*time.Minute {
		t.Errorf("CredentialTTL = %v", c.Daemon.CredentialTTL)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://app@localhost/panel")
	t.Setenv("TOKENS_IMPERSONATION_TTL", "5m")

	p := writeConfig(t, "server:\n  addr: \":8080\"\n")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want env override", c.Server.Addr)
	}
	if c.Storage.Driver != "postgres" || c.Storage.DSN == "" {
		t.Errorf("storage = %q / %q", c.Storage.Driver, c.Storage.DSN)
	}
	if c.Tokens.ImpersonationTTL != 5*time.Minute {
		t.Errorf("ImpersonationTTL = %v", c.Tokens.ImpersonationTTL)
	}
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing issuer", "email:\n  base_url: https://p.example.com\n  dev_mode: true\n"},
		{"postgres without dsn", "storage:\n  driver: postgres\ndaemon:\n  issuer: https://p.example.com\nemail:\n  base_url: https://p.example.com\n  dev_mode: true\n"},
		{"redis without addr", "cache:\n  kind: redis\ndaemon:\n  issuer: https://p.example.com\nemail:\n  base_url: https://p.example.com\n  dev_mode: true\n"},
		{"smtp missing outside dev", "daemon:\n  issuer: https://p.example.com\nemail:\n  base_url: https://p.example.com\n"},
		{"dev mailer in prod", "app:\n  app_env: prod\ndaemon:\n  issuer: https://p.example.com\nemail:\n  base_url: https://p.example.com\n  dev_mode: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, tc.body))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if err := c.Validate(); err == nil {
				t.Fatal("Validate accepted incomplete config")
			}
		})
	}
}
