package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"meerchat/pkg/api"
	"meerchat/pkg/auth"
	"meerchat/pkg/config/banner"
	"meerchat/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.eff, verStr)
}

// bodyLimit leaves headroom over the avatar limit for multipart framing.
func bodyLimit(avatarMax int64) int {
	const (
		defaultMax = 5 * 1024 * 1024 // 5 MiB
		headroom   = 64 * 1024
	)
	if n := avatarMax + headroom; n > defaultMax {
		return int(n)
	}
	return defaultMax
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config
	avatarMax := cfg.Profile.AvatarMaxSize.Int64()

	handler := api.Handler(api.Deps{
		Store:          a.rows,
		Auth:           a.auth,
		Chat:           a.chat,
		Profiles:       a.profiles,
		Feed:           a.hub,
		Avatars:        a.avatars,
		AvatarMaxSize:  avatarMax,
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
	})
	gateway, stop := auth.Gateway(auth.GatewayConfigFrom(cfg.Security))
	a.gatewayStop = stop
	handler = gateway(handler)

	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		readTimeout          = 10 * time.Second // timeout for reading request
		writeTimeout         = 10 * time.Second // timeout for writing response
		idleTimeout          = 30 * time.Second // max keep-alive idle duration per connection
		maxKeepaliveDuration = 2 * time.Minute  // max duration for keep-alive connection
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "meerchat",
		Handler:              handler,
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   bodyLimit(avatarMax),
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		addr := a.eff.Addr
		tls := cfg.Server.TLS
		logger.Info("http_listening", "addr", addr, "tls", tls.CertFile != "")
		if tls.CertFile != "" {
			errCh <- a.srvFast.ListenAndServeTLS(addr, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}
