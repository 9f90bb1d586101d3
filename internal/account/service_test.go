package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/securetoken"
	"github.com/dropDatabas3/quarterdeck/internal/store/memory"
)

type sentMail struct {
	to    string
	token string
}

type captureNotifier struct {
	verifications []sentMail
	resets        []sentMail
}

func (c *captureNotifier) SendEmailVerification(_ context.Context, to, _, token string, _ time.Time) error {
	c.verifications = append(c.verifications, sentMail{to: to, token: token})
	return nil
}

func (c *captureNotifier) SendPasswordReset(_ context.Context, to, _, token string, _ time.Time) error {
	c.resets = append(c.resets, sentMail{to: to, token: token})
	return nil
}

func newFixture(t *testing.T) (*Service, *memory.Store, *captureNotifier) {
	t.Helper()
	st := memory.New()
	st.SeedUser(repository.User{ID: "u1", Username: "alice", Email: "alice@example.com", Role: repository.RoleUser})
	st.SeedUser(repository.User{ID: "admin1", Username: "root", Email: "root@example.com", Role: repository.RoleAdmin})
	st.SeedUser(repository.User{ID: "u2", Username: "bob", Email: "bob@example.com", Role: repository.RoleUser, Suspended: true})

	n := &captureNotifier{}
	svc := New(st.Users(), securetoken.New(st.SecureTokens()), n, nil)
	return svc, st, n
}

func TestVerifyEmailRoundTrip(t *testing.T) {
	t.Parallel()
	svc, st, n := newFixture(t)
	ctx := context.Background()

	if err := svc.RequestVerification(ctx, "u1"); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	if len(n.verifications) != 1 || n.verifications[0].to != "alice@example.com" {
		t.Fatalf("verifications = %+v", n.verifications)
	}

	token := n.verifications[0].token
	if err := svc.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	u, _ := st.Users().GetByID(ctx, "u1")
	if u.EmailVerifiedAt == nil {
		t.Fatal("email not marked verified")
	}

	// single-use
	if err := svc.VerifyEmail(ctx, token); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("reuse: err = %v, want ErrInvalidToken", err)
	}
}

func TestRequestVerificationSkipsVerifiedAccount(t *testing.T) {
	t.Parallel()
	svc, st, n := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	st.SeedUser(repository.User{ID: "u3", Username: "carol", Email: "carol@example.com", Role: repository.RoleUser, EmailVerifiedAt: &now})

	if err := svc.RequestVerification(ctx, "u3"); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	if len(n.verifications) != 0 {
		t.Fatalf("sent %d verification mails for a verified account", len(n.verifications))
	}
}

func TestRequestVerificationInvalidatesPreviousToken(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	if err := svc.RequestVerification(ctx, "u1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := svc.RequestVerification(ctx, "u1"); err != nil {
		t.Fatalf("second request: %v", err)
	}

	first, second := n.verifications[0].token, n.verifications[1].token
	if err := svc.VerifyEmail(ctx, first); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("stale token: err = %v, want ErrInvalidToken", err)
	}
	if err := svc.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("latest token: %v", err)
	}
}

func TestForgotPasswordNeverRevealsAccountExistence(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	if err := svc.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "bob@example.com"); err != nil {
		t.Fatalf("suspended account: %v", err)
	}
	if len(n.resets) != 0 {
		t.Fatalf("sent %d reset mails", len(n.resets))
	}
}

func TestResetPasswordFlow(t *testing.T) {
	t.Parallel()
	svc, st, n := newFixture(t)
	ctx := context.Background()

	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(n.resets) != 1 {
		t.Fatalf("resets = %+v", n.resets)
	}

	token := n.resets[0].token
	if err := svc.ResetPassword(ctx, token, "correct-horse-battery"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	u, _ := st.Users().GetByID(ctx, "u1")
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse-battery")); err != nil {
		t.Fatalf("stored hash does not match new password: %v", err)
	}
	if u.PasswordResetRequired {
		t.Fatal("reset flag not cleared")
	}

	if err := svc.ResetPassword(ctx, token, "another-password"); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("reuse: err = %v, want ErrInvalidToken", err)
	}
}

func TestResetPasswordWeakPasswordKeepsTokenAlive(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	token := n.resets[0].token

	if err := svc.ResetPassword(ctx, token, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
	// el rechazo por password débil no quema el token
	if err := svc.ResetPassword(ctx, token, "long-enough-now"); err != nil {
		t.Fatalf("retry with valid password: %v", err)
	}
}

func TestOnlyLatestResetTokenWorks(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	_ = svc.ForgotPassword(ctx, "alice@example.com")
	_ = svc.ForgotPassword(ctx, "alice@example.com")

	if err := svc.ResetPassword(ctx, n.resets[0].token, "valid-password-1"); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("stale token: err = %v, want ErrInvalidToken", err)
	}
	if err := svc.ResetPassword(ctx, n.resets[1].token, "valid-password-1"); err != nil {
		t.Fatalf("latest token: %v", err)
	}
}

func TestImpersonationGuards(t *testing.T) {
	t.Parallel()
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.IssueImpersonation(ctx, "u1", "admin1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin issuer: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.IssueImpersonation(ctx, "admin1", "admin1"); !errors.Is(err, ErrSelfImpersonation) {
		t.Fatalf("self target: err = %v, want ErrSelfImpersonation", err)
	}
	if _, err := svc.IssueImpersonation(ctx, "admin1", "u2"); !repository.IsConflict(err) {
		t.Fatalf("suspended target: err = %v, want Conflict", err)
	}
}

func TestImpersonationRoundTrip(t *testing.T) {
	t.Parallel()
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueImpersonation(ctx, "admin1", "u1")
	if err != nil {
		t.Fatalf("IssueImpersonation: %v", err)
	}

	imp, err := svc.ConsumeImpersonation(ctx, issued.Value)
	if err != nil {
		t.Fatalf("ConsumeImpersonation: %v", err)
	}
	if imp.Target.ID != "u1" || imp.AdminID != "admin1" {
		t.Fatalf("impersonation = target %q by %q", imp.Target.ID, imp.AdminID)
	}

	if _, err := svc.ConsumeImpersonation(ctx, issued.Value); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("reuse: err = %v, want ErrInvalidToken", err)
	}
}

func TestImpersonationRejectedIfTargetSuspendedAfterIssue(t *testing.T) {
	t.Parallel()
	svc, st, _ := newFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueImpersonation(ctx, "admin1", "u1")
	if err != nil {
		t.Fatalf("IssueImpersonation: %v", err)
	}
	if err := st.Users().SetSuspended(ctx, "u1", true); err != nil {
		t.Fatalf("SetSuspended: %v", err)
	}

	if _, err := svc.ConsumeImpersonation(ctx, issued.Value); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestSetTemporaryPassword(t *testing.T) {
	t.Parallel()
	svc, st, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.SetTemporaryPassword(ctx, "u1", "u2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin: err = %v, want ErrForbidden", err)
	}

	temp, err := svc.SetTemporaryPassword(ctx, "admin1", "u1")
	if err != nil {
		t.Fatalf("SetTemporaryPassword: %v", err)
	}
	if temp == "" {
		t.Fatal("empty temporary password")
	}

	u, _ := st.Users().GetByID(ctx, "u1")
	if !u.PasswordResetRequired {
		t.Fatal("reset flag not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(temp)); err != nil {
		t.Fatalf("stored hash does not match temp password: %v", err)
	}
}

func TestTemporaryPasswordInvalidatesPendingTokens(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueImpersonation(ctx, "admin1", "u1")
	if err != nil {
		t.Fatalf("IssueImpersonation: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	if _, err := svc.SetTemporaryPassword(ctx, "admin1", "u1"); err != nil {
		t.Fatalf("SetTemporaryPassword: %v", err)
	}

	if _, err := svc.ConsumeImpersonation(ctx, issued.Value); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("pending impersonation: err = %v, want ErrInvalidToken", err)
	}
	if err := svc.ResetPassword(ctx, n.resets[0].token, "otra-password-larga"); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("pending reset: err = %v, want ErrInvalidToken", err)
	}
}

func TestPasswordResetInvalidatesPendingImpersonation(t *testing.T) {
	t.Parallel()
	svc, _, n := newFixture(t)
	ctx := context.Background()

	issued, err := svc.IssueImpersonation(ctx, "admin1", "u1")
	if err != nil {
		t.Fatalf("IssueImpersonation: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := svc.ResetPassword(ctx, n.resets[0].token, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := svc.ConsumeImpersonation(ctx, issued.Value); !errors.Is(err, securetoken.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
