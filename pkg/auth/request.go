package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/router"
)

// SessionCookie carries the access token for browser clients.
const SessionCookie = "meerchat_session"

// SessionFromRequest reads the bearer token, falling back to the session
// cookie, and validates it.
func (s *Service) SessionFromRequest(ctx *fasthttp.RequestCtx) (Session, error) {
	token := router.BearerToken(ctx)
	if token == "" {
		token = string(ctx.Request.Header.Cookie(SessionCookie))
	}
	return s.GetSession(context.Background(), token)
}

// CheckCSRF requires X-CSRF-Token to equal the session's access token.
func CheckCSRF(ctx *fasthttp.RequestCtx, sess Session) error {
	got := router.GetHeader(ctx, "X-CSRF-Token")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(sess.AccessToken)) != 1 {
		return ErrCSRF
	}
	return nil
}

// SessionHandler is a handler that runs with a validated session.
type SessionHandler func(ctx *fasthttp.RequestCtx, sess Session)

// RequireSession rejects requests without a valid session with 401.
func (s *Service) RequireSession(next SessionHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sess, err := s.SessionFromRequest(ctx)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to load session")
				return
			}
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "authentication required")
			return
		}
		next(ctx, sess)
	}
}

// RequireCSRF is RequireSession plus the CSRF header check (403).
func (s *Service) RequireCSRF(next SessionHandler) fasthttp.RequestHandler {
	return s.RequireSession(func(ctx *fasthttp.RequestCtx, sess Session) {
		if err := CheckCSRF(ctx, sess); err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "invalid request")
			return
		}
		next(ctx, sess)
	})
}

// SetSessionCookie stores the access token in an http-only cookie.
func SetSessionCookie(ctx *fasthttp.RequestCtx, sess Session) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(SessionCookie)
	c.SetValue(sess.AccessToken)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(ctx.IsTLS())
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetExpire(sess.ExpiresAt)
	ctx.Response.Header.SetCookie(c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(ctx *fasthttp.RequestCtx) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(SessionCookie)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetExpire(time.Unix(0, 0))
	ctx.Response.Header.SetCookie(c)
}
