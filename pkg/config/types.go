package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	Auth       AuthConfig       `yaml:"auth"`
	Chat       ChatConfig       `yaml:"chat"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Redis      RedisConfig      `yaml:"redis"`
	Store      StoreConfig      `yaml:"store"`
	ChangeFeed ChangeFeedConfig `yaml:"changefeed"`
	LLM        LLMConfig        `yaml:"llm"`
	Profile    ProfileConfig    `yaml:"profile"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	// PublicURL is the externally reachable base used to build avatar and
	// email links, e.g. "https://chat.example.com".
	PublicURL string    `yaml:"public_url"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds gateway settings applied to every request.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// AuthConfig controls sessions, email flows and oauth providers.
type AuthConfig struct {
	JWTSecret            string                   `yaml:"jwt_secret"`
	SessionTimeout       Duration                 `yaml:"session_timeout"`
	RequireVerifiedEmail bool                     `yaml:"require_verified_email"`
	SiteURL              string                   `yaml:"site_url"`
	VerifyTokenTTL       Duration                 `yaml:"verify_token_ttl"`
	ResetTokenTTL        Duration                 `yaml:"reset_token_ttl"`
	OAuth                map[string]OAuthProvider `yaml:"oauth"`
}

// OAuthProvider describes an authorization-code provider.
type OAuthProvider struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	Scopes       []string `yaml:"scopes"`
}

// ChatConfig holds message posting rules.
type ChatConfig struct {
	Channels         []string `yaml:"channels"`
	MaxMessageLength int      `yaml:"max_message_length"`
	AIUserID         string   `yaml:"ai_user_id"`
}

// RateLimitConfig holds the per-user posting window.
type RateLimitConfig struct {
	Backend        string   `yaml:"backend"` // "memory" or "redis"
	MaxRequests    int      `yaml:"max_requests"`
	Window         Duration `yaml:"window"`
	StatsResetCron string   `yaml:"stats_reset_cron"`
}

// RedisConfig is shared by the redis rate limiter and change feed bridge.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig selects the row store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // "pebble" or "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ChangeFeedConfig selects how insert events are fanned out.
type ChangeFeedConfig struct {
	Backend string `yaml:"backend"` // "memory" or "redis"
	Buffer  int    `yaml:"buffer"`
}

// LLMConfig configures the assistant completion client.
type LLMConfig struct {
	Mode         string   `yaml:"mode"` // "openai" or "disabled"
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	Model        string   `yaml:"model"`
	Temperature  float32  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
	Fallback     string   `yaml:"fallback"`
	Timeout      Duration `yaml:"timeout"`
}

// ProfileConfig holds profile defaults and avatar limits.
type ProfileConfig struct {
	AvatarMaxSize SizeBytes `yaml:"avatar_max_size"`
	DefaultName   string    `yaml:"default_name"`
	DefaultAvatar string    `yaml:"default_avatar"`
	Bucket        string    `yaml:"bucket"`
}

// SensorConfig holds disk watermark settings.
type SensorConfig struct {
	DiskHighPct  int      `yaml:"disk_high_pct"`
	PollInterval Duration `yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "1MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSizeBytes(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

func parseSizeBytes(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
