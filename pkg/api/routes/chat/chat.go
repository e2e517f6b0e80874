// Package chat serves message posting, paging and the live stream.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/api/routes/common"
	"meerchat/pkg/auth"
	chatsvc "meerchat/pkg/chat"
	"meerchat/pkg/changefeed"
	"meerchat/pkg/logger"
	"meerchat/pkg/models"
	"meerchat/pkg/router"
	"meerchat/pkg/store"
)

// Subscriber is the change feed the stream endpoint listens on.
type Subscriber interface {
	Subscribe(channel string, fn func(changefeed.Event)) (func(), error)
}

type Handlers struct {
	auth     *auth.Service
	chat     *chatsvc.Service
	messages store.MessageStore
	feed     Subscriber
	origins  []string
}

func New(a *auth.Service, c *chatsvc.Service, messages store.MessageStore, feed Subscriber, allowedOrigins []string) *Handlers {
	return &Handlers{auth: a, chat: c, messages: messages, feed: feed, origins: allowedOrigins}
}

func (h *Handlers) Register(r *router.Router) {
	r.POST("/api/chat", h.auth.RequireCSRF(h.Post))
	r.GET("/api/channels/{channel}/messages", h.auth.RequireSession(h.ListMessages))
	r.GET("/api/channels/{channel}/stream", h.Stream)
}

func (h *Handlers) Post(ctx *fasthttp.RequestCtx, sess auth.Session) {
	var req chatsvc.PostRequest
	if !common.DecodeJSON(ctx, &req) {
		return
	}
	res, err := h.chat.Post(context.Background(), sess, req)
	if err != nil {
		status := common.ChatStatus(err)
		if status == fasthttp.StatusTooManyRequests {
			ctx.Response.Header.Set("Retry-After", "60")
		}
		router.WriteJSONError(ctx, status, chatsvc.PublicMessage(err))
		return
	}
	_ = router.WriteJSON(ctx, res)
}

// ListMessages returns one page newest first; has_more is true when the
// page is full.
func (h *Handlers) ListMessages(ctx *fasthttp.RequestCtx, sess auth.Session) {
	channel := router.PathParam(ctx, "channel")
	if err := h.chat.CheckChannel(channel); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, chatsvc.PublicMessage(err))
		return
	}

	limit := models.DefaultPageSize
	if raw := router.GetQuery(ctx, "limit"); raw != "" {
		limit = router.GetQueryInt(ctx, "limit", -1)
		if limit < 1 || limit > models.MaxPageSize {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
	}

	req := models.PageRequest{Channel: channel, Limit: limit}
	if raw := router.GetQuery(ctx, "before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		req.Before = &before
	}

	msgs, err := h.messages.ListMessages(context.Background(), req)
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "store unavailable")
			return
		}
		logger.Error("list_messages_failed", "channel", channel, "user_id", sess.UserID, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	_ = router.WriteJSON(ctx, models.PageResponse{Messages: msgs, HasMore: len(msgs) == limit})
}
