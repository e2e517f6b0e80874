package app

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-redis/redis/v8"
	"github.com/valyala/fasthttp"

	"meerchat/internal/jobs"
	"meerchat/pkg/auth"
	"meerchat/pkg/changefeed"
	"meerchat/pkg/chat"
	"meerchat/pkg/config"
	"meerchat/pkg/llm"
	"meerchat/pkg/logger"
	"meerchat/pkg/objstore"
	"meerchat/pkg/profile"
	"meerchat/pkg/ratelimit"
	"meerchat/pkg/sensor"
	"meerchat/pkg/state"
	"meerchat/pkg/store"
	"meerchat/pkg/store/pebblestore"
	"meerchat/pkg/store/pgstore"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	paths     state.Paths
	version   string
	commit    string
	buildDate string

	db       store.Store
	rows     *store.Notifying
	hub      *changefeed.Hub
	bridge   *changefeed.RedisBridge
	redis    *redis.Client
	limiter  ratelimit.Limiter
	auth     *auth.Service
	chat     *chat.Service
	profiles *profile.Service
	avatars  *objstore.Local
	hwSensor *sensor.Sensor

	srvFast     *fasthttp.Server
	gatewayStop func()
	jobsCancel  context.CancelFunc
	bridgeStop  context.CancelFunc
	bridgeDone  chan struct{}
	state       string
}

// New opens the store and builds every service. It does not listen; call
// Run for that.
func New(eff config.EffectiveConfigResult, paths state.Paths, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, fmt.Errorf("effective config is nil")
	}
	a := &App{eff: eff, paths: paths, version: version, commit: commit, buildDate: buildDate, state: "starting"}

	db, err := openStore(cfg.Store, paths)
	if err != nil {
		return nil, err
	}
	a.db = db

	if cfg.RateLimit.Backend == "redis" || cfg.ChangeFeed.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	a.hub = changefeed.NewHub(cfg.ChangeFeed.Buffer)
	var pub store.Publisher = a.hub
	if cfg.ChangeFeed.Backend == "redis" {
		a.bridge = changefeed.NewRedisBridge(a.hub, a.redis)
		pub = a.bridge
	}
	a.rows = store.NewNotifying(db, pub)

	window := cfg.RateLimit.Window.Duration()
	if cfg.RateLimit.Backend == "redis" {
		a.limiter = ratelimit.NewRedis(a.redis, cfg.RateLimit.MaxRequests, window, nil)
	} else {
		a.limiter = ratelimit.NewMemory(cfg.RateLimit.MaxRequests, window, nil)
	}

	a.avatars, err = objstore.NewLocal(paths.Objects, cfg.Profile.Bucket, cfg.Server.PublicURL)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("open avatar bucket: %w", err)
	}
	a.hwSensor = sensor.New(paths.DB, cfg.Sensor.DiskHighPct, cfg.Sensor.PollInterval.Duration())

	a.auth = auth.NewService(a.rows, cfg.Auth, cfg.Server.PublicURL)
	a.profiles = profile.NewService(a.rows, a.avatars, a.hwSensor, cfg.Profile)
	a.chat = chat.NewService(a.rows, a.profiles, a.limiter, llm.New(cfg.LLM), cfg.Chat, cfg.LLM)

	logger.LogConfigSummary("config_limits_summary", []string{
		fmt.Sprintf("rate_limit: %d posts per %s (%s)", cfg.RateLimit.MaxRequests, window, cfg.RateLimit.Backend),
		fmt.Sprintf("stats_reset_cron: %s", cfg.RateLimit.StatsResetCron),
		fmt.Sprintf("max_message_length: %s", humanize.Comma(int64(cfg.Chat.MaxMessageLength))),
		fmt.Sprintf("avatar_max_size: %s", cfg.Profile.AvatarMaxSize),
		fmt.Sprintf("request_body_limit: %s", humanize.IBytes(uint64(bodyLimit(cfg.Profile.AvatarMaxSize.Int64())))),
		fmt.Sprintf("disk_high_watermark: %d%%", cfg.Sensor.DiskHighPct),
	})
	logger.Info("app_initialized",
		"store", cfg.Store.Backend,
		"ratelimit", cfg.RateLimit.Backend,
		"changefeed", cfg.ChangeFeed.Backend,
		"llm", cfg.LLM.Mode,
	)
	return a, nil
}

func openStore(sc config.StoreConfig, paths state.Paths) (store.Store, error) {
	switch sc.Backend {
	case "postgres":
		db, err := pgstore.Open(context.Background(), sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return db, nil
	default:
		db, err := pebblestore.Open(paths.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
		}
		return db, nil
	}
}

// Run starts background jobs and the http server, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	a.hwSensor.Start()

	if a.bridge != nil {
		ready := make(chan struct{})
		bctx, cancel := context.WithCancel(ctx)
		a.bridgeStop = cancel
		a.bridgeDone = make(chan struct{})
		go func() {
			defer close(a.bridgeDone)
			if err := a.bridge.Run(bctx, ready); err != nil {
				logger.Error("changefeed_redis_bridge_failed", "error", err)
			}
		}()
		select {
		case <-ready:
		case <-a.bridgeDone:
			return fmt.Errorf("changefeed redis bridge did not start")
		case <-ctx.Done():
			return nil
		}
	}

	job, err := jobs.StatsReset(a.eff.Config.RateLimit.StatsResetCron, a.limiter)
	if err != nil {
		return err
	}
	a.jobsCancel = job.Start(ctx)

	errCh := a.startHTTP(ctx)
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) closeStore() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}
