package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/adhocore/gronx"
)

const minJWTSecretLen = 32

// fail fast on values that would only surface as runtime errors later
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, MEERCHAT_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if len(cfg.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes: set MEERCHAT_JWT_SECRET", minJWTSecretLen)
	}
	for name, p := range cfg.Auth.OAuth {
		if p.ClientID == "" || p.AuthURL == "" || p.TokenURL == "" || p.UserInfoURL == "" {
			return fmt.Errorf("auth.oauth.%s: client_id, auth_url, token_url and userinfo_url are required", name)
		}
	}
	if u := cfg.Server.PublicURL; u != "" {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid server.public_url: %w", err)
		}
	}

	switch cfg.Store.Backend {
	case "pebble":
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("store.backend is postgres but store.postgres_dsn is empty")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want pebble or postgres)", cfg.Store.Backend)
	}

	needRedis := false
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		needRedis = true
	default:
		return fmt.Errorf("unknown ratelimit.backend %q (want memory or redis)", cfg.RateLimit.Backend)
	}
	switch cfg.ChangeFeed.Backend {
	case "memory":
	case "redis":
		needRedis = true
	default:
		return fmt.Errorf("unknown changefeed.backend %q (want memory or redis)", cfg.ChangeFeed.Backend)
	}
	if needRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis backend selected but redis.addr is empty")
	}

	switch cfg.LLM.Mode {
	case "openai", "disabled":
	default:
		return fmt.Errorf("unknown llm.mode %q (want openai or disabled)", cfg.LLM.Mode)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}

	if !gronx.New().IsValid(cfg.RateLimit.StatsResetCron) {
		return fmt.Errorf("invalid ratelimit.stats_reset_cron: not a valid cron expression")
	}
	if cfg.Sensor.DiskHighPct > 100 {
		return fmt.Errorf("sensor.disk_high_pct must be <= 100")
	}
	return nil
}
