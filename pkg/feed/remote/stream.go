package remote

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meerchat/pkg/changefeed"
	"meerchat/pkg/logger"
)

const handshakeTimeout = 10 * time.Second

func (c *Client) streamURL(channel string) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/channels/" + url.PathEscape(channel) + "/stream"
	return u.String(), nil
}

// Subscribe opens the channel's websocket stream and calls fn for every
// event frame until the returned cancel func is called or the server
// closes the connection. There is no reconnect. fn may run once more
// after cancel returns.
func (c *Client) Subscribe(channel string, fn func(changefeed.Event)) (func(), error) {
	target, err := c.streamURL(channel)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(target, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Join(ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	go func() {
		for {
			var ev changefeed.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
					logger.Debug("stream_read_ended", "channel", channel, "error", err)
				}
				return
			}
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		})
	}, nil
}
