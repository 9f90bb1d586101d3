// Package store abre el backend de persistencia configurado y expone los
// repositorios del dominio detrás de una única interfaz.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/store/memory"
	"github.com/dropDatabas3/quarterdeck/internal/store/pg"
)

// DataStore agrupa los repositorios del dominio. Lo implementan memory.Store
// y pg.Store.
type DataStore interface {
	Users() repository.UserRepository
	Servers() repository.ServerRepository
	Nodes() repository.NodeRepository
	Allocations() repository.AllocationRepository
	SecureTokens() repository.SecureTokenRepository
	Transfers() repository.TransferRepository
	Grants() repository.GrantRepository
	AuditEvents() repository.AuditEventRepository
}

type Config struct {
	Driver   string
	DSN      string
	Postgres pg.Config
}

// Stores expone el DataStore más el ciclo de vida del backend.
type Stores struct {
	DataStore
	Migrate func(ctx context.Context) error
	Ping    func(ctx context.Context) error
	Close   func()
}

// Open abre el backend según el driver configurado.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "pg", "postgresql":
		st, err := pg.New(ctx, cfg.DSN, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &Stores{
			DataStore: st,
			Migrate:   st.Migrate,
			Ping:      st.Ping,
			Close:     st.Close,
		}, nil
	case "memory", "":
		st := memory.New()
		return &Stores{
			DataStore: st,
			Migrate:   func(context.Context) error { return nil },
			Ping:      func(context.Context) error { return nil },
			Close:     func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}
