// Package common holds helpers shared by the route packages.
package common

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/chat"
	"meerchat/pkg/router"
)

// MaxJSONBody bounds decoded JSON request bodies.
const MaxJSONBody = 64 << 10

// DecodeJSON decodes the request body into v, writing 400 on failure.
func DecodeJSON(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "empty request payload")
		return false
	}
	if len(body) > MaxJSONBody {
		router.WriteJSONError(ctx, fasthttp.StatusRequestEntityTooLarge, "request payload too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid json payload")
		return false
	}
	return true
}

// ChatStatus maps a chat service error to its HTTP status.
func ChatStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return fasthttp.StatusBadRequest
	case errors.Is(err, chat.ErrForbidden):
		return fasthttp.StatusForbidden
	case errors.Is(err, chat.ErrParentNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, chat.ErrRateLimited):
		return fasthttp.StatusTooManyRequests
	default:
		return fasthttp.StatusInternalServerError
	}
}
