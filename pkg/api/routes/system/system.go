// Package system serves probes and public storage objects.
package system

import (
	"errors"
	"mime"
	"path/filepath"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/objstore"
	"meerchat/pkg/router"
)

// ReadyChecker reports whether a dependency can serve traffic.
type ReadyChecker interface {
	Ready() bool
}

type Handlers struct {
	ready   ReadyChecker
	buckets map[string]*objstore.Local
}

func New(ready ReadyChecker, buckets ...*objstore.Local) *Handlers {
	h := &Handlers{ready: ready, buckets: make(map[string]*objstore.Local, len(buckets))}
	for _, b := range buckets {
		h.buckets[b.Name()] = b
	}
	return h
}

func (h *Handlers) Register(r *router.Router) {
	r.GET("/healthz", Health)
	r.GET("/readyz", h.Ready)
	r.GET("/storage/{bucket}/{name}", h.Object)
}

func Health(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_, _ = ctx.WriteString(`{"status":"ok","service":"meerchat"}`)
}

func (h *Handlers) Ready(ctx *fasthttp.RequestCtx) {
	if h.ready == nil || !h.ready.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	ctx.Response.Header.Set("Content-Type", "application/json")
	_, _ = ctx.WriteString(`{"status":"ready"}`)
}

// Object streams a stored file. Names are opaque and never overwritten,
// so responses are cacheable.
func (h *Handlers) Object(ctx *fasthttp.RequestCtx) {
	b, ok := h.buckets[router.PathParam(ctx, "bucket")]
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "bucket not found")
		return
	}
	name := router.PathParam(ctx, "name")
	f, size, err := b.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, objstore.ErrNotFound):
			router.WriteJSONError(ctx, fasthttp.StatusNotFound, "object not found")
		case errors.Is(err, objstore.ErrInvalidPath):
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid object path")
		default:
			router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to read object")
		}
		return
	}
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	ctx.Response.Header.Set("Content-Type", ct)
	ctx.Response.Header.Set("Cache-Control", "public, max-age=31536000, immutable")
	ctx.Response.Header.Set("X-Content-Type-Options", "nosniff")
	// fasthttp closes f once the body is written
	ctx.SetBodyStream(f, int(size))
}
