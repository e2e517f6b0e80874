package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirrored by the hosted product this service replaces.
const (
	defaultPort             = 8080
	defaultSessionTimeout   = 3600 * time.Second
	defaultVerifyTokenTTL   = 24 * time.Hour
	defaultResetTokenTTL    = time.Hour
	defaultMaxMessageLength = 1000
	defaultAIUserID         = "00000000-0000-4000-8000-000000000000"

	defaultRateLimitBackend = "memory"
	defaultRateLimitMax     = 10
	defaultRateLimitWindow  = 60 * time.Second
	defaultStatsResetCron   = "0 * * * *" // hourly

	defaultStoreBackend      = "pebble"
	defaultChangeFeedBackend = "memory"
	defaultChangeFeedBuffer  = 256

	defaultLLMMode        = "openai"
	defaultLLMModel       = "gpt-3.5-turbo"
	defaultLLMTemperature = 0.7
	defaultLLMMaxTokens   = 500
	defaultLLMTimeout     = 30 * time.Second
	defaultLLMFallback    = "Sorry, I couldn't come up with a reply this time."

	defaultAvatarMaxSize = 1024 * 1024 // 1 MiB
	defaultProfileName   = "New user"
	defaultAvatarURL     = "/user.webp"
	defaultAvatarBucket  = "avatars"

	defaultSensorDiskHighPct  = 95
	defaultSensorPollInterval = 5 * time.Second

	defaultGatewayRPS   = 50
	defaultGatewayBurst = 100
)

// DefaultSystemPrompt is the assistant persona used when llm.system_prompt is empty.
const DefaultSystemPrompt = `You are "MeerChat", a cheerful meerkat assistant living in a group chat.

Personality:
- friendly and approachable
- bright, relaxed and unhurried

Style:
- chat gently and at an easy pace
- give concrete examples when they help ("for example, meer~")
- respect what the other person wants from the conversation

Limits:
- do not respond to inappropriate content
- never handle personal information
- for highly specialised topics, admit "that one's tricky, meer~"

Sprinkle friendly sentence endings like "meer!" and empathetic phrases like
"life has its ups and downs, meer". Your goal is a fun, laid-back chat.`

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file. A missing file yields an
// error satisfying errors.Is(err, fs.ErrNotExist).
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, fs.ErrNotExist)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults in place. It never fails on a missing
// value; value checks live in the package-level ValidateConfig.
func (c *Config) ValidateConfig() error {
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultGatewayRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultGatewayBurst
	}

	// auth
	if c.Auth.SessionTimeout.Duration() <= 0 {
		c.Auth.SessionTimeout = Duration(defaultSessionTimeout)
	}
	if c.Auth.VerifyTokenTTL.Duration() <= 0 {
		c.Auth.VerifyTokenTTL = Duration(defaultVerifyTokenTTL)
	}
	if c.Auth.ResetTokenTTL.Duration() <= 0 {
		c.Auth.ResetTokenTTL = Duration(defaultResetTokenTTL)
	}
	if c.Auth.SiteURL == "" {
		c.Auth.SiteURL = c.Server.PublicURL
	}

	// chat
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = defaultMaxMessageLength
	}
	if c.Chat.AIUserID == "" {
		c.Chat.AIUserID = defaultAIUserID
	}

	// rate limit
	c.RateLimit.Backend = strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = defaultRateLimitBackend
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = defaultRateLimitMax
	}
	if c.RateLimit.Window.Duration() <= 0 {
		c.RateLimit.Window = Duration(defaultRateLimitWindow)
	}
	if c.RateLimit.StatsResetCron == "" {
		c.RateLimit.StatsResetCron = defaultStatsResetCron
	}

	// storage and fan-out
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.ChangeFeed.Backend = strings.ToLower(strings.TrimSpace(c.ChangeFeed.Backend))
	if c.ChangeFeed.Backend == "" {
		c.ChangeFeed.Backend = defaultChangeFeedBackend
	}
	if c.ChangeFeed.Buffer <= 0 {
		c.ChangeFeed.Buffer = defaultChangeFeedBuffer
	}

	// llm
	c.LLM.Mode = strings.ToLower(strings.TrimSpace(c.LLM.Mode))
	if c.LLM.Mode == "" {
		c.LLM.Mode = defaultLLMMode
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaultLLMTemperature
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
	if c.LLM.Timeout.Duration() <= 0 {
		c.LLM.Timeout = Duration(defaultLLMTimeout)
	}
	if strings.TrimSpace(c.LLM.SystemPrompt) == "" {
		c.LLM.SystemPrompt = DefaultSystemPrompt
	}
	if c.LLM.Fallback == "" {
		c.LLM.Fallback = defaultLLMFallback
	}

	// profile
	if c.Profile.AvatarMaxSize <= 0 {
		c.Profile.AvatarMaxSize = SizeBytes(defaultAvatarMaxSize)
	}
	if c.Profile.DefaultName == "" {
		c.Profile.DefaultName = defaultProfileName
	}
	if c.Profile.DefaultAvatar == "" {
		c.Profile.DefaultAvatar = defaultAvatarURL
	}
	if c.Profile.Bucket == "" {
		c.Profile.Bucket = defaultAvatarBucket
	}

	// sensor
	if c.Sensor.DiskHighPct <= 0 {
		c.Sensor.DiskHighPct = defaultSensorDiskHighPct
	}
	if c.Sensor.PollInterval.Duration() <= 0 {
		c.Sensor.PollInterval = Duration(defaultSensorPollInterval)
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MEERCHAT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
