package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"meerchat/pkg/config"
	"meerchat/pkg/store/pebblestore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type captureMailer struct {
	mu   sync.Mutex
	sent []Mail
}

func (c *captureMailer) Send(ctx context.Context, m Mail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *captureMailer) last(t *testing.T) Mail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no mail sent")
	return c.sent[len(c.sent)-1]
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:      testSecret,
		SessionTimeout: config.Duration(time.Hour),
		VerifyTokenTTL: config.Duration(24 * time.Hour),
		ResetTokenTTL:  config.Duration(time.Hour),
		SiteURL:        "https://chat.example.com",
	}
}

func newTestService(t *testing.T, cfg config.AuthConfig, opts ...Option) (*Service, *captureMailer) {
	t.Helper()
	db, err := pebblestore.OpenInMemory(pebblestore.WithNoSync())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m := &captureMailer{}
	opts = append([]Option{WithMailer(m), WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(db, cfg, "", opts...), m
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testAuthConfig())

	u, err := svc.SignUp(ctx, " Meer@Example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "meer@example.com", u.Email)

	_, err = svc.SignUp(ctx, "meer@example.com", "another1")
	require.ErrorIs(t, err, ErrConflict)

	_, _, err = svc.SignIn(ctx, "meer@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.SignIn(ctx, "nobody@example.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	sess, got, err := svc.SignIn(ctx, "MEER@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, int64(3600), sess.ExpiresIn)

	back, err := svc.GetSession(ctx, sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, back.UserID)

	require.NoError(t, svc.SignOut(ctx, back))
	_, err = svc.GetSession(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t, testAuthConfig())
	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"bad email", "not-an-email", "secret1", ErrInvalidEmail},
		{"display name form", "Meer <meer@example.com>", "secret1", ErrInvalidEmail},
		{"short password", "a@example.com", "12345", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	svc, _ := newTestService(t, testAuthConfig(), WithClock(func() time.Time { return now }))

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	sess, _, err := svc.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.GetSession(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTamperedTokenRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testAuthConfig())
	other := NewIssuer("ffffffffffffffffffffffffffffffff", time.Hour, nil)

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, u, err := svc.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	forged, err := other.Issue(u)
	require.NoError(t, err)
	_, err = svc.GetSession(ctx, forged.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	svc, mailer := newTestService(t, testAuthConfig())

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	sentAfterSignup := len(mailer.sent)

	// unknown addresses look identical to the caller
	require.NoError(t, svc.RequestPasswordReset(ctx, "ghost@example.com", ""))
	require.Len(t, mailer.sent, sentAfterSignup)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@example.com", "https://evil.example.net/steal"))
	mail := mailer.last(t)
	require.Contains(t, mail.Link, "https://chat.example.com/auth/reset-password?token=")
	token := tokenFrom(t, mail.Link)

	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, token, "short"), ErrWeakPassword)
	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, "newsecret"))
	require.ErrorIs(t, svc.ConfirmPasswordReset(ctx, token, "newsecret2"), ErrInvalidToken)

	_, _, err = svc.SignIn(ctx, "a@example.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	sess, _, err := svc.SignIn(ctx, "a@example.com", "newsecret")
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePassword(ctx, sess, "third-pass"))
	_, _, err = svc.SignIn(ctx, "a@example.com", "third-pass")
	require.NoError(t, err)
}

func TestRequireVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	cfg := testAuthConfig()
	cfg.RequireVerifiedEmail = true
	svc, mailer := newTestService(t, cfg)

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, _, err = svc.SignIn(ctx, "a@example.com", "secret1")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	mail := mailer.last(t)
	require.Contains(t, mail.Link, "/auth/verify-email?token=")
	u, err := svc.VerifyEmail(ctx, tokenFrom(t, mail.Link))
	require.NoError(t, err)
	require.True(t, u.EmailVerified)

	_, _, err = svc.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
}
