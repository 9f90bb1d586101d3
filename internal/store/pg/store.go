// Package pg implementa los repositorios sobre PostgreSQL (pgxpool).
// Las operaciones condicionales del dominio (consume de tokens, claims de
// allocations, transiciones de transfer) son UPDATEs condicionales: la
// atomicidad vive en la base, nunca en un check-then-act del proceso.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

type Store struct{ pool *pgxpool.Pool }

// Config ajusta el pool de conexiones.
type Config struct {
	MaxConns        int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// Non-blocking startup: si la base está caída el proceso arranca igual
	// y reintenta en el primer uso.
	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		logger.L().Info("pg pool ready", logger.Count(int(pcfg.MaxConns)))
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Users() repository.UserRepository               { return (*userRepo)(s) }
func (s *Store) Servers() repository.ServerRepository           { return (*serverRepo)(s) }
func (s *Store) Nodes() repository.NodeRepository               { return (*nodeRepo)(s) }
func (s *Store) Allocations() repository.AllocationRepository   { return (*allocationRepo)(s) }
func (s *Store) SecureTokens() repository.SecureTokenRepository { return (*tokenRepo)(s) }
func (s *Store) Transfers() repository.TransferRepository       { return (*transferRepo)(s) }
func (s *Store) Grants() repository.GrantRepository             { return (*grantRepo)(s) }
func (s *Store) AuditEvents() repository.AuditEventRepository   { return (*auditRepo)(s) }
