package common

import (
	"errors"
	"testing"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/chat"
)

func TestChatStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrValidation, fasthttp.StatusBadRequest},
		{chat.ErrForbidden, fasthttp.StatusForbidden},
		{chat.ErrParentNotFound, fasthttp.StatusNotFound},
		{chat.ErrRateLimited, fasthttp.StatusTooManyRequests},
		{chat.ErrCompletion, fasthttp.StatusInternalServerError},
		{errors.New("boom"), fasthttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := ChatStatus(tc.err); got != tc.want {
			t.Errorf("ChatStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetBody([]byte(`{"name":"x"}`))
	var v struct{ Name string }
	if !DecodeJSON(&ctx, &v) || v.Name != "x" {
		t.Fatalf("decode failed: %+v", v)
	}

	var bad fasthttp.RequestCtx
	bad.Request.SetBody([]byte(`{`))
	if DecodeJSON(&bad, &v) {
		t.Fatal("expected failure")
	}
	if bad.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", bad.Response.StatusCode())
	}
}
