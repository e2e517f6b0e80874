// Package profiles serves login and the profile endpoints.
package profiles

import (
	"context"
	"errors"
	"io"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/api/routes/common"
	"meerchat/pkg/auth"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/profile"
	"meerchat/pkg/router"
)

// maxMultipartOverhead is allowed on top of the avatar size limit.
const maxMultipartOverhead = 64 << 10

type Handlers struct {
	auth      *auth.Service
	profiles  *profile.Service
	maxAvatar int64
}

func New(a *auth.Service, p *profile.Service, maxAvatar int64) *Handlers {
	return &Handlers{auth: a, profiles: p, maxAvatar: maxAvatar}
}

func (h *Handlers) Register(r *router.Router) {
	r.POST("/api/login", h.Login)
	r.GET("/api/profiles", h.auth.RequireSession(h.Me))
	r.PUT("/api/profiles", h.auth.RequireCSRF(h.UpdateName))
	r.GET("/api/profiles/{id}", h.auth.RequireSession(h.Lookup))
	r.POST("/api/profiles/avatar", h.auth.RequireCSRF(h.UploadAvatar))
	r.DELETE("/api/profiles/avatar", h.auth.RequireCSRF(h.RemoveAvatar))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type loginResponse struct {
	Success bool          `json:"success"`
	User    *loginUser    `json:"user,omitempty"`
	Session *auth.Session `json:"session,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Me is the caller's own profile.
type Me struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Public is another user's profile.
type Public struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (h *Handlers) Login(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		router.WriteJSONStatus(ctx, fasthttp.StatusBadRequest, loginResponse{Message: "email and password are required"})
		return
	}
	bg := context.Background()
	sess, u, err := h.auth.SignIn(bg, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			router.WriteJSONStatus(ctx, fasthttp.StatusUnauthorized, loginResponse{Message: "Invalid login credentials"})
		case errors.Is(err, auth.ErrEmailNotVerified):
			router.WriteJSONStatus(ctx, fasthttp.StatusForbidden, loginResponse{Message: "Email not confirmed"})
		default:
			logger.Error("login_failed", "error", err)
			router.WriteJSONStatus(ctx, fasthttp.StatusInternalServerError, loginResponse{Message: "login failed"})
		}
		return
	}
	p, err := h.profiles.Get(bg, u.ID)
	if err != nil {
		logger.Error("login_profile_failed", "user_id", u.ID, "error", err)
		router.WriteJSONStatus(ctx, fasthttp.StatusInternalServerError, loginResponse{Message: "login failed"})
		return
	}
	auth.SetSessionCookie(ctx, sess)
	_ = router.WriteJSON(ctx, loginResponse{
		Success: true,
		User:    &loginUser{ID: u.ID, Name: p.Name},
		Session: &sess,
	})
}

func (h *Handlers) writeMe(ctx *fasthttp.RequestCtx, sess auth.Session, p models.Profile) {
	_ = router.WriteJSON(ctx, Me{ID: p.ID, Name: p.Name, Email: sess.Email, Avatar: p.AvatarURL})
}

func (h *Handlers) Me(ctx *fasthttp.RequestCtx, sess auth.Session) {
	p, err := h.profiles.Get(context.Background(), sess.UserID)
	if err != nil {
		logger.Error("profile_get_failed", "user_id", sess.UserID, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to load profile")
		return
	}
	ctx.Response.Header.Set("Cache-Control", "private, max-age=300")
	h.writeMe(ctx, sess, p)
}

func (h *Handlers) Lookup(ctx *fasthttp.RequestCtx, sess auth.Session) {
	p, err := h.profiles.Lookup(context.Background(), router.PathParam(ctx, "id"))
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			router.WriteJSONError(ctx, fasthttp.StatusNotFound, "profile not found")
			return
		}
		logger.Error("profile_lookup_failed", "id", router.PathParam(ctx, "id"), "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to load profile")
		return
	}
	ctx.Response.Header.Set("Cache-Control", "private, max-age=300")
	_ = router.WriteJSON(ctx, Public{ID: p.ID, Name: p.Name, Avatar: p.AvatarURL})
}

func (h *Handlers) UpdateName(ctx *fasthttp.RequestCtx, sess auth.Session) {
	var req struct {
		Name string `json:"name"`
	}
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	p, err := h.profiles.UpdateName(context.Background(), sess.UserID, req.Name)
	if err != nil {
		h.writeProfileError(ctx, sess, err)
		return
	}
	h.writeMe(ctx, sess, p)
}

func (h *Handlers) UploadAvatar(ctx *fasthttp.RequestCtx, sess auth.Session) {
	if int64(len(ctx.PostBody())) > h.maxAvatar+maxMultipartOverhead {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, profile.ErrAvatarTooLarge.Error())
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "unreadable upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxAvatar+1))
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "unreadable upload")
		return
	}

	p, err := h.profiles.UploadAvatar(context.Background(), sess.UserID, fh.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeProfileError(ctx, sess, err)
		return
	}
	h.writeMe(ctx, sess, p)
}

func (h *Handlers) RemoveAvatar(ctx *fasthttp.RequestCtx, sess auth.Session) {
	p, err := h.profiles.RemoveAvatar(context.Background(), sess.UserID)
	if err != nil {
		h.writeProfileError(ctx, sess, err)
		return
	}
	h.writeMe(ctx, sess, p)
}

func (h *Handlers) writeProfileError(ctx *fasthttp.RequestCtx, sess auth.Session, err error) {
	switch {
	case errors.Is(err, profile.ErrInvalidName),
		errors.Is(err, profile.ErrAvatarTooLarge),
		errors.Is(err, profile.ErrAvatarType):
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrDiskFull):
		router.WriteJSONError(ctx, fasthttp.StatusInsufficientStorage, err.Error())
	default:
		logger.Error("profile_update_failed", "user_id", sess.UserID, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to update profile")
	}
}
