package chat

import (
	"context"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"meerchat/pkg/auth"
	chatsvc "meerchat/pkg/chat"
	"meerchat/pkg/changefeed"
	"meerchat/pkg/logger"
	"meerchat/pkg/router"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 2 * pingPeriod
	writeTimeout = 10 * time.Second
	streamBuffer = 64
)

func (h *Handlers) checkOrigin(ctx *fasthttp.RequestCtx) bool {
	origin := router.GetHeader(ctx, "Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	host := string(ctx.Host())
	return strings.HasSuffix(origin, "://"+host)
}

// streamSession accepts the usual bearer or cookie, plus an access_token
// query parameter for browser websocket clients that cannot set headers.
func (h *Handlers) streamSession(ctx *fasthttp.RequestCtx) (auth.Session, error) {
	sess, err := h.auth.SessionFromRequest(ctx)
	if err == nil {
		return sess, nil
	}
	if tok := router.GetQuery(ctx, "access_token"); tok != "" {
		return h.auth.GetSession(context.Background(), tok)
	}
	return auth.Session{}, err
}

// Stream upgrades to a websocket and forwards the channel's change events
// as JSON frames.
func (h *Handlers) Stream(ctx *fasthttp.RequestCtx) {
	sess, err := h.streamSession(ctx)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "authentication required")
		return
	}
	channel := router.PathParam(ctx, "channel")
	if err := h.chat.CheckChannel(channel); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, chatsvc.PublicMessage(err))
		return
	}

	upgrader := websocket.FastHTTPUpgrader{
		HandshakeTimeout: writeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer conn.Close()
		h.pump(conn, channel, sess.UserID)
	})
	if err != nil {
		logger.Warn("stream_upgrade_failed", "channel", channel, "error", err)
	}
}

func (h *Handlers) pump(conn *websocket.Conn, channel, userID string) {
	events := make(chan changefeed.Event, streamBuffer)
	unsubscribe, err := h.feed.Subscribe(channel, func(ev changefeed.Event) {
		select {
		case events <- ev:
		default:
			logger.Warn("stream_event_dropped", "channel", channel, "user_id", userID, "id", ev.Message.ID)
		}
	})
	if err != nil {
		logger.Error("stream_subscribe_failed", "channel", channel, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeTimeout))
		return
	}
	defer unsubscribe()
	logger.Debug("stream_opened", "channel", channel, "user_id", userID)

	// reader: only pongs and close frames are expected
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			ev.Origin = ""
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("stream_write_failed", "channel", channel, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("stream_closed", "channel", channel, "user_id", userID)
			return
		}
	}
}
