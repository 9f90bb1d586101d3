// Package cache provee una abstracción de caching con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para despliegues multi-instancia)
//
// El panel la usa para detalles de node resueltos por el gateway. Nunca
// cachear material secreto en el backend redis.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que la key no existe o expiró.
var ErrNotFound = errors.New("cache: key not found")

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0, usa el default del backend.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea el cliente según el driver configurado.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		ttl := cfg.DefaultTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return NewMemory(ttl), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, errors.New("cache: unknown driver " + cfg.Driver)
	}
}
