// Package remote talks to a MeerChat server over HTTP and its websocket
// stream. Client satisfies feed.PageSource and feed.Subscriber.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/auth"
	"meerchat/pkg/chat"
	"meerchat/pkg/models"
)

const defaultTimeout = 30 * time.Second

var ErrUnauthorized = errors.New("remote: unauthorized")

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Code, e.Message)
}

type Client struct {
	base  string
	token string
	hc    *fasthttp.Client
}

// New returns a client for baseURL. token may be empty until Login.
func New(baseURL, token string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		hc: &fasthttp.Client{
			Name:                     "meerchatctl",
			NoDefaultUserAgentHeader: true,
			ReadTimeout:              defaultTimeout,
			WriteTimeout:             defaultTimeout,
		},
	}
}

func (c *Client) Token() string { return c.token }

func (c *Client) SetToken(token string) { c.token = token }

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-CSRF-Token", c.token)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		if code == fasthttp.StatusUnauthorized {
			return errors.Join(ErrUnauthorized, &StatusError{Code: code, Message: msg})
		}
		return &StatusError{Code: code, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ListMessages fetches one page, newest first.
func (c *Client) ListMessages(ctx context.Context, r models.PageRequest) ([]models.Message, error) {
	q := url.Values{}
	if r.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.Limit))
	}
	if r.Before != nil {
		q.Set("before", r.Before.UTC().Format(time.RFC3339Nano))
	}
	path := "/api/channels/" + url.PathEscape(r.Channel) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page models.PageResponse
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// LoginResult is the body of a successful POST /api/login.
type LoginResult struct {
	Success bool `json:"success"`
	User    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Session auth.Session `json:"session"`
}

// Login signs in and keeps the returned access token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, fasthttp.MethodPost, "/api/login", map[string]string{"email": email, "password": password}, &res)
	if err != nil {
		return LoginResult{}, err
	}
	c.token = res.Session.AccessToken
	return res, nil
}

// Post sends a chat message.
func (c *Client) Post(ctx context.Context, r chat.PostRequest) (chat.PostResult, error) {
	var res chat.PostResult
	err := c.do(ctx, fasthttp.MethodPost, "/api/chat", r, &res)
	return res, err
}
