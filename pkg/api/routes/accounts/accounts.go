// Package accounts serves the /auth endpoints.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/api/routes/common"
	"meerchat/pkg/auth"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/router"
)

// ProfileEnsurer creates the default profile after a first sign-in.
type ProfileEnsurer interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
}

type Handlers struct {
	auth     *auth.Service
	profiles ProfileEnsurer
}

func New(a *auth.Service, profiles ProfileEnsurer) *Handlers {
	return &Handlers{auth: a, profiles: profiles}
}

func (h *Handlers) Register(r *router.Router) {
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/signout", h.auth.RequireCSRF(h.SignOut))
	r.GET("/auth/session", h.auth.RequireSession(h.Session))
	r.GET("/auth/user", h.User)
	r.POST("/auth/reset-password", h.ResetPassword)
	r.POST("/auth/update-password", h.UpdatePassword)
	r.POST("/auth/verify-email", h.VerifyEmail)
	r.GET("/auth/verify-email", h.VerifyEmailLink)
	r.GET("/auth/oauth/{provider}", h.OAuthStart)
	r.GET("/auth/callback/{provider}", h.OAuthCallback)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public part of an account.
type UserView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewOf(u models.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, EmailVerified: u.EmailVerified, CreatedAt: u.CreatedAt}
}

// writeAuthError maps auth errors to statuses; unknown errors are logged
// under event and reported generically.
func writeAuthError(ctx *fasthttp.RequestCtx, event string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrOAuthState):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailNotVerified), errors.Is(err, auth.ErrCSRF):
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnknownProvider):
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
	default:
		logger.Error(event, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) SignUp(ctx *fasthttp.RequestCtx) {
	var req credentials
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	u, err := h.auth.SignUp(context.Background(), req.Email, req.Password)
	if err != nil {
		writeAuthError(ctx, "signup_failed", err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusCreated, map[string]any{"user": viewOf(u)})
}

func (h *Handlers) SignIn(ctx *fasthttp.RequestCtx) {
	var req credentials
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	sess, u, err := h.auth.SignIn(context.Background(), req.Email, req.Password)
	if err != nil {
		writeAuthError(ctx, "signin_failed", err)
		return
	}
	h.startSession(ctx, sess, u)
	_ = router.WriteJSON(ctx, map[string]any{"session": sess, "user": viewOf(u)})
}

func (h *Handlers) startSession(ctx *fasthttp.RequestCtx, sess auth.Session, u models.User) {
	if _, err := h.profiles.Get(context.Background(), u.ID); err != nil {
		logger.Warn("profile_ensure_failed", "user_id", u.ID, "error", err)
	}
	auth.SetSessionCookie(ctx, sess)
}

func (h *Handlers) SignOut(ctx *fasthttp.RequestCtx, sess auth.Session) {
	if err := h.auth.SignOut(context.Background(), sess); err != nil {
		writeAuthError(ctx, "signout_failed", err)
		return
	}
	auth.ClearSessionCookie(ctx)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *Handlers) Session(ctx *fasthttp.RequestCtx, sess auth.Session) {
	_ = router.WriteJSON(ctx, map[string]any{"session": sess})
}

func (h *Handlers) User(ctx *fasthttp.RequestCtx) {
	token := router.BearerToken(ctx)
	if token == "" {
		token = string(ctx.Request.Header.Cookie(auth.SessionCookie))
	}
	u, err := h.auth.GetUser(context.Background(), token)
	if err != nil {
		writeAuthError(ctx, "get_user_failed", err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"user": viewOf(u)})
}

func (h *Handlers) ResetPassword(ctx *fasthttp.RequestCtx) {
	var req struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirect_to"`
	}
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	_ = h.auth.RequestPasswordReset(context.Background(), req.Email, req.RedirectTo)
	_ = router.WriteJSON(ctx, map[string]any{})
}

// UpdatePassword sets a new password either for the signed-in user or,
// when a reset token is given, for the token's owner.
func (h *Handlers) UpdatePassword(ctx *fasthttp.RequestCtx) {
	var req struct {
		Password string `json:"password"`
		Token    string `json:"token"`
	}
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	bg := context.Background()
	if req.Token != "" {
		if err := h.auth.ConfirmPasswordReset(bg, req.Token, req.Password); err != nil {
			writeAuthError(ctx, "password_reset_failed", err)
			return
		}
		_ = router.WriteJSON(ctx, map[string]any{})
		return
	}

	sess, err := h.auth.SessionFromRequest(ctx)
	if err == nil {
		err = auth.CheckCSRF(ctx, sess)
	}
	if err == nil {
		err = h.auth.UpdatePassword(bg, sess, req.Password)
	}
	if err != nil {
		writeAuthError(ctx, "password_update_failed", err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{})
}

func (h *Handlers) VerifyEmail(ctx *fasthttp.RequestCtx) {
	var req struct {
		Token string `json:"token"`
	}
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	u, err := h.auth.VerifyEmail(context.Background(), req.Token)
	if err != nil {
		writeAuthError(ctx, "verify_email_failed", err)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{"user": viewOf(u)})
}

// VerifyEmailLink handles the emailed link and redirects to the site root.
func (h *Handlers) VerifyEmailLink(ctx *fasthttp.RequestCtx) {
	if _, err := h.auth.VerifyEmail(context.Background(), router.GetQuery(ctx, "token")); err != nil {
		writeAuthError(ctx, "verify_email_failed", err)
		return
	}
	ctx.Redirect("/?verified=1", fasthttp.StatusFound)
}

func (h *Handlers) OAuthStart(ctx *fasthttp.RequestCtx) {
	target, err := h.auth.OAuthRedirect(router.PathParam(ctx, "provider"), router.GetQuery(ctx, "next"))
	if err != nil {
		writeAuthError(ctx, "oauth_start_failed", err)
		return
	}
	ctx.Redirect(target, fasthttp.StatusFound)
}

func (h *Handlers) OAuthCallback(ctx *fasthttp.RequestCtx) {
	if e := router.GetQuery(ctx, "error"); e != "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "oauth provider error: "+e)
		return
	}
	sess, u, next, err := h.auth.OAuthCallback(context.Background(),
		router.PathParam(ctx, "provider"), router.GetQuery(ctx, "code"), router.GetQuery(ctx, "state"))
	if err != nil {
		writeAuthError(ctx, "oauth_callback_failed", err)
		return
	}
	h.startSession(ctx, sess, u)
	if next == "" {
		next = "/"
	}
	ctx.Redirect(next, fasthttp.StatusFound)
}
