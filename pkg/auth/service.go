// Package auth implements accounts, sessions and the request gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"meerchat/pkg/config"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/store"
)

// Service implements sign-up, sign-in, sessions and email token flows.
type Service struct {
	users      store.UserStore
	issuer     *Issuer
	mailer     Mailer
	cfg        config.AuthConfig
	siteURL    string
	providers  map[string]*provider
	httpClient *http.Client
	bcryptCost int
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithBcryptCost lowers hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(users store.UserStore, cfg config.AuthConfig, publicURL string, opts ...Option) *Service {
	s := &Service{
		users:      users,
		mailer:     LogMailer{},
		cfg:        cfg,
		httpClient: http.DefaultClient,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.siteURL = strings.TrimRight(cfg.SiteURL, "/")
	if s.siteURL == "" {
		s.siteURL = strings.TrimRight(publicURL, "/")
	}
	s.issuer = NewIssuer(cfg.JWTSecret, cfg.SessionTimeout.Duration(), s.now)
	s.providers = buildProviders(cfg.OAuth, s.siteURL)
	return s
}

func (s *Service) SignUp(ctx context.Context, email, password string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.users.CreateUser(ctx, models.User{ID: uuid.NewString(), Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	logger.AuditEvent("signup", "user_id", u.ID)

	if err := s.sendToken(ctx, u, models.TokenVerifyEmail, s.cfg.VerifyTokenTTL.Duration(), "Confirm your email", s.siteURL+"/auth/verify-email"); err != nil {
		logger.Error("verify_email_send_failed", "user_id", u.ID, "error", err)
	}
	return u, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, models.User{}, ErrInvalidCredentials
		}
		return Session{}, models.User{}, err
	}
	if !checkPassword(u.PasswordHash, password) {
		logger.AuditEvent("signin_failed", "user_id", u.ID)
		return Session{}, models.User{}, ErrInvalidCredentials
	}
	if s.cfg.RequireVerifiedEmail && !u.EmailVerified {
		return Session{}, models.User{}, ErrEmailNotVerified
	}
	sess, err := s.issuer.Issue(u)
	if err != nil {
		return Session{}, models.User{}, err
	}
	logger.AuditEvent("signin", "user_id", u.ID)
	return sess, u, nil
}

// SignOut revokes the session's token until it would have expired.
func (s *Service) SignOut(ctx context.Context, sess Session) error {
	if err := s.users.RevokeSession(ctx, sess.JTI, sess.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	logger.AuditEvent("signout", "user_id", sess.UserID)
	return nil
}

func (s *Service) GetSession(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	sess, err := s.issuer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.users.SessionRevoked(ctx, sess.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, ErrUnauthorized
	}
	return sess, nil
}

func (s *Service) GetUser(ctx context.Context, token string) (models.User, error) {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUnauthorized
	}
	return u, err
}

// RequestPasswordReset never reports whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("password_reset_lookup_failed", "error", err)
		}
		return nil
	}
	base := s.siteURL + "/auth/reset-password"
	if redirectTo != "" && s.allowedRedirect(redirectTo) {
		base = redirectTo
	}
	if err := s.sendToken(ctx, u, models.TokenResetPassword, s.cfg.ResetTokenTTL.Duration(), "Reset your password", base); err != nil {
		logger.Error("password_reset_send_failed", "user_id", u.ID, "error", err)
	}
	return nil
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	hash, err := hashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	u, err := s.consume(ctx, models.TokenResetPassword, token)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	// following the emailed link proves ownership of the address
	u.EmailVerified = true
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return err
	}
	logger.AuditEvent("password_reset", "user_id", u.ID)
	return nil
}

func (s *Service) UpdatePassword(ctx context.Context, sess Session, newPassword string) error {
	hash, err := hashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return err
	}
	logger.AuditEvent("password_update", "user_id", u.ID)
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (models.User, error) {
	u, err := s.consume(ctx, models.TokenVerifyEmail, token)
	if err != nil {
		return models.User{}, err
	}
	u.EmailVerified = true
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return models.User{}, err
	}
	logger.AuditEvent("email_verified", "user_id", u.ID)
	return u, nil
}

// IssueSession mints a session for an already authenticated user.
func (s *Service) IssueSession(u models.User) (Session, error) {
	return s.issuer.Issue(u)
}

func (s *Service) consume(ctx context.Context, kind, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrInvalidToken
	}
	t, err := s.users.ConsumeToken(ctx, kind, hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, ErrInvalidToken
		}
		return models.User{}, err
	}
	u, err := s.users.GetUser(ctx, t.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrInvalidToken
	}
	return u, err
}

func (s *Service) sendToken(ctx context.Context, u models.User, kind string, ttl time.Duration, subject, base string) error {
	token, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.users.SaveToken(ctx, models.AuthToken{
		Hash:      hash,
		Kind:      kind,
		UserID:    u.ID,
		ExpiresAt: s.now().Add(ttl).UTC(),
	}); err != nil {
		return err
	}
	return s.mailer.Send(ctx, Mail{To: u.Email, Subject: subject, Link: withToken(base, token)})
}

// allowedRedirect accepts relative paths and absolute URLs on the site origin.
func (s *Service) allowedRedirect(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
	}
	site, err := url.Parse(s.siteURL)
	return err == nil && site.Host != "" && strings.EqualFold(site.Host, u.Host) && site.Scheme == u.Scheme
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
