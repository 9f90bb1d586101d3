package securetoken

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/store/memory"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(memory.New().SecureTokens(), opts...)
}

func TestIssueConsume_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if issued.Value == "" || !strings.Contains(issued.Value, ".") {
		t.Fatalf("unexpected value format: %q", issued.Value)
	}
	if !strings.HasPrefix(issued.Value, issued.ID+".") {
		t.Fatalf("value should start with token id")
	}

	got, err := s.Consume(ctx, repository.TokenKindPasswordReset, issued.Value)
	if err != nil {
		t.Fatalf("Consume err: %v", err)
	}
	if got.SubjectID != "user-1" {
		t.Fatalf("subject mismatch: got %q", got.SubjectID)
	}

	// segundo consume del mismo valor -> INVALID
	if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, issued.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestConsume_WrongSecret(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindVerification, "user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	tampered := issued.ID + ".definitely-not-the-secret"
	if _, err := s.Consume(ctx, repository.TokenKindVerification, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// el token sigue siendo consumible con el valor correcto
	if _, err := s.Consume(ctx, repository.TokenKindVerification, issued.Value); err != nil {
		t.Fatalf("valid consume after tampered attempt: %v", err)
	}
}

func TestConsume_WrongKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindVerification, "user-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, issued.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for cross-kind consume, got %v", err)
	}
}

func TestConsume_Malformed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"", ".", "solo-id.", ".solo-secreto", "sin-separador"} {
		if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, v); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("value %q: expected ErrInvalidToken, got %v", v, err)
		}
	}
}

func TestConsume_Expired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	clock := now
	var mu sync.Mutex
	nowFn := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	s := newTestStore(t, WithClock(nowFn))
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	if err != nil {
		t.Fatal(err)
	}

	// avanzar el reloj pasada la TTL de reset (1h)
	mu.Lock()
	clock = now.Add(61 * time.Minute)
	mu.Unlock()

	if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, issued.Value); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindImpersonation, "user-1", "admin-1")
	if err != nil {
		t.Fatal(err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Consume(ctx, repository.TokenKindImpersonation, issued.Value)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidToken):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d (losses %d)", wins, losses)
	}
}

func TestIssue_ImpersonationRequiresIssuer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Issue(context.Background(), repository.TokenKindImpersonation, "user-1", ""); err == nil {
		t.Fatal("expected error without issuer")
	}
}

func TestConsume_ReturnsIssuer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	issued, err := s.Issue(ctx, repository.TokenKindImpersonation, "target-user", "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Consume(ctx, repository.TokenKindImpersonation, issued.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubjectID != "target-user" || got.IssuerID != "admin-1" {
		t.Fatalf("subject/issuer mismatch: %+v", got)
	}
}

func TestInvalidateAllForSubject(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	b, _ := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	other, _ := s.Issue(ctx, repository.TokenKindVerification, "user-1", "")

	n, err := s.InvalidateAllForSubject(ctx, repository.TokenKindPasswordReset, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 invalidated, got %d", n)
	}

	for _, v := range []string{a.Value, b.Value} {
		if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, v); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken after invalidation, got %v", err)
		}
	}
	// el kind no afectado sigue vivo
	if _, err := s.Consume(ctx, repository.TokenKindVerification, other.Value); err != nil {
		t.Fatalf("verification token should survive: %v", err)
	}
}

// La invalidación solo alcanza tokens pendientes: una fila ya consumida es
// rastro de consumo y se conserva hasta que la limpieza por expiración la
// recoja.
func TestInvalidateAllForSubjectKeepsConsumedRows(t *testing.T) {
	t.Parallel()
	repo := memory.New().SecureTokens()
	s := New(repo)
	ctx := context.Background()

	used, _ := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	pending, _ := s.Issue(ctx, repository.TokenKindPasswordReset, "user-1", "")
	if _, err := s.Consume(ctx, repository.TokenKindPasswordReset, used.Value); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	n, err := s.InvalidateAllForSubject(ctx, repository.TokenKindPasswordReset, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("invalidated %d tokens, want only the pending one", n)
	}

	if _, err := repo.GetByID(ctx, used.ID); err != nil {
		t.Fatalf("consumed row should remain: %v", err)
	}
	if _, err := repo.GetByID(ctx, pending.ID); !repository.IsNotFound(err) {
		t.Fatalf("pending row should be gone, got %v", err)
	}
}
