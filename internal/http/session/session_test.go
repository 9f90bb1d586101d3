package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/cache"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewManager(cache.NewMemory(time.Minute), time.Minute)
	ctx := context.Background()

	tok, err := m.Create(ctx, Data{UserID: "u1", Role: repository.RoleUser, ImpersonatedBy: "admin1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d, err := m.Get(ctx, tok)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.UserID != "u1" || d.ImpersonatedBy != "admin1" {
		t.Fatalf("data = %+v", d)
	}

	if err := m.Destroy(ctx, tok); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := m.Get(ctx, tok); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after destroy: err = %v, want ErrNotFound", err)
	}
}

func TestSessionUnknownToken(t *testing.T) {
	t.Parallel()
	m := NewManager(cache.NewMemory(time.Minute), time.Minute)

	if _, err := m.Get(context.Background(), "bogus"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
