// Package api assembles the MeerChat HTTP surface.
package api

import (
	"github.com/valyala/fasthttp"

	"meerchat/pkg/api/routes/accounts"
	"meerchat/pkg/api/routes/chat"
	"meerchat/pkg/api/routes/profiles"
	"meerchat/pkg/api/routes/system"
	"meerchat/pkg/auth"
	chatsvc "meerchat/pkg/chat"
	"meerchat/pkg/metrics"
	"meerchat/pkg/objstore"
	"meerchat/pkg/profile"
	"meerchat/pkg/router"
	"meerchat/pkg/store"
)

// Deps are the services behind the routes.
type Deps struct {
	Store          store.Store
	Auth           *auth.Service
	Chat           *chatsvc.Service
	Profiles       *profile.Service
	Feed           chat.Subscriber
	Avatars        *objstore.Local
	AvatarMaxSize  int64
	AllowedOrigins []string
}

// RegisterRoutes wires all API routes onto the provided router.
func RegisterRoutes(r *router.Router, d Deps) {
	chat.New(d.Auth, d.Chat, d.Store, d.Feed, d.AllowedOrigins).Register(r)
	profiles.New(d.Auth, d.Profiles, d.AvatarMaxSize).Register(r)
	accounts.New(d.Auth, d.Profiles).Register(r)

	var buckets []*objstore.Local
	if d.Avatars != nil {
		buckets = append(buckets, d.Avatars)
	}
	system.New(d.Store, buckets...).Register(r)

	r.GET("/metrics", metrics.Handler())
}

// Handler returns the routed handler without the gateway middleware.
func Handler(d Deps) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, d)
	return r.Handler
}
