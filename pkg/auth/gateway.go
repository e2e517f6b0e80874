package auth

import (
	"net"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/config"
	"meerchat/pkg/logger"
	"meerchat/pkg/metrics"
	"meerchat/pkg/router"
)

// GatewayConfig holds the settings applied to every request before routing.
type GatewayConfig struct {
	AllowedOrigins []string
	IPWhitelist    []string
	RPS            float64
	Burst          int
}

func GatewayConfigFrom(sec config.SecurityConfig) GatewayConfig {
	return GatewayConfig{
		AllowedOrigins: sec.CORS.AllowedOrigins,
		IPWhitelist:    sec.IPWhitelist,
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
	}
}

// Gateway returns the outer middleware (access log, cors, ip allow-list,
// per-ip rate limit) and a func that stops its background cleanup.
// Session checks happen per route.
func Gateway(cfg GatewayConfig) (func(fasthttp.RequestHandler) fasthttp.RequestHandler, func()) {
	limiters := newIPBuckets(cfg.RPS, cfg.Burst, nil)
	mw := func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.LogRequestFast(ctx)
			defer func() {
				metrics.ObserveHTTP(router.Route(ctx), ctx.Response.StatusCode())
			}()

			// cors headers and handle options shortcut
			origin := router.GetHeader(ctx, "Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Vary", "Origin")
				ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-CSRF-Token")
			}
			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			ip := clientIPFast(ctx)
			// ip whitelist check (always before all other checks except cors/options)
			if len(cfg.IPWhitelist) > 0 && !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", string(ctx.Path()))
				return
			}

			// probes bypass the limiter
			if publicAllowedPath(ctx) {
				next(ctx)
				return
			}

			if ok, wait := limiters.take(ip); !ok {
				ctx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "ip", ip, "path", string(ctx.Path()))
				return
			}

			next(ctx)
		}
	}
	return mw, limiters.stop
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	if string(ctx.Method()) != fasthttp.MethodGet {
		return false
	}
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}
