package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of reading MEERCHAT_* variables
type EnvResult struct {
	EnvUsed bool
	// Secrets lists the secret fields found in the environment. They are
	// applied on top of whichever source wins.
	Secrets map[string]string
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// parses command-line flags from args (normally os.Args[1:])
func ParseConfigFlags(args []string) (Flags, error) {
	fset := flag.NewFlagSet("meerchat", flag.ContinueOnError)
	addrPtr := fset.String("addr", ":8080", "HTTP listen address")
	dbPtr := fset.String("db", "./.database", "data directory (pebble store, avatars, audit log)")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// secret env keys, applied regardless of the winning source
var secretEnvs = []string{"JWT_SECRET", "LLM_API_KEY", "OPENAI_API_KEY", "POSTGRES_DSN", "REDIS_PASSWORD"}

// loads MEERCHAT_* environment variables into a new Config
func ParseConfigEnvs() (*Config, EnvResult) {
	keys := []string{
		"SERVER_ADDR", "SERVER_ADDRESS", "SERVER_PORT", "DB_PATH", "PUBLIC_URL",
		"TLS_CERT", "TLS_KEY",
		"CORS_ORIGINS", "RATE_RPS", "RATE_BURST", "IP_WHITELIST",
		"JWT_SECRET", "SESSION_TIMEOUT", "REQUIRE_VERIFIED_EMAIL", "SITE_URL",
		"CHAT_CHANNELS", "CHAT_MAX_MESSAGE_LENGTH",
		"RATELIMIT_BACKEND", "RATELIMIT_MAX_REQUESTS", "RATELIMIT_WINDOW", "RATELIMIT_STATS_RESET_CRON",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"STORE_BACKEND", "POSTGRES_DSN",
		"CHANGEFEED_BACKEND", "CHANGEFEED_BUFFER",
		"LLM_MODE", "LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT",
		"AVATAR_MAX_SIZE", "SENSOR_DISK_HIGH_PCT",
		"LOG_LEVEL",
	}
	envs := make(map[string]string, len(keys)+1)
	envUsed := false
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv("MEERCHAT_" + k))
		envs[k] = v
		if v != "" {
			envUsed = true
		}
	}
	// the conventional name is honoured too
	envs["OPENAI_API_KEY"] = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))

	envCfg := &Config{}

	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}

	if v := envs["SERVER_ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			envCfg.Server.Port = parseInt(p)
		} else {
			envCfg.Server.Address = v
		}
	} else {
		envCfg.Server.Address = envs["SERVER_ADDRESS"]
		if v := envs["SERVER_PORT"]; v != "" {
			envCfg.Server.Port = parseInt(v)
		}
	}
	envCfg.Server.DBPath = envs["DB_PATH"]
	envCfg.Server.PublicURL = envs["PUBLIC_URL"]
	envCfg.Server.TLS.CertFile = envs["TLS_CERT"]
	envCfg.Server.TLS.KeyFile = envs["TLS_KEY"]

	envCfg.Security.CORS.AllowedOrigins = parseList(envs["CORS_ORIGINS"])
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		envCfg.Security.RateLimit.Burst = parseInt(v)
	}
	envCfg.Security.IPWhitelist = parseList(envs["IP_WHITELIST"])

	envCfg.Auth.JWTSecret = envs["JWT_SECRET"]
	if v := envs["SESSION_TIMEOUT"]; v != "" {
		envCfg.Auth.SessionTimeout, _ = parseDuration(v)
	}
	envCfg.Auth.RequireVerifiedEmail = parseBool(envs["REQUIRE_VERIFIED_EMAIL"])
	envCfg.Auth.SiteURL = envs["SITE_URL"]

	envCfg.Chat.Channels = parseList(envs["CHAT_CHANNELS"])
	if v := envs["CHAT_MAX_MESSAGE_LENGTH"]; v != "" {
		envCfg.Chat.MaxMessageLength = parseInt(v)
	}

	envCfg.RateLimit.Backend = envs["RATELIMIT_BACKEND"]
	if v := envs["RATELIMIT_MAX_REQUESTS"]; v != "" {
		envCfg.RateLimit.MaxRequests = parseInt(v)
	}
	if v := envs["RATELIMIT_WINDOW"]; v != "" {
		envCfg.RateLimit.Window, _ = parseDuration(v)
	}
	envCfg.RateLimit.StatsResetCron = envs["RATELIMIT_STATS_RESET_CRON"]

	envCfg.Redis.Addr = envs["REDIS_ADDR"]
	envCfg.Redis.Password = envs["REDIS_PASSWORD"]
	if v := envs["REDIS_DB"]; v != "" {
		envCfg.Redis.DB = parseInt(v)
	}

	envCfg.Store.Backend = envs["STORE_BACKEND"]
	envCfg.Store.PostgresDSN = envs["POSTGRES_DSN"]
	envCfg.ChangeFeed.Backend = envs["CHANGEFEED_BACKEND"]
	if v := envs["CHANGEFEED_BUFFER"]; v != "" {
		envCfg.ChangeFeed.Buffer = parseInt(v)
	}

	envCfg.LLM.Mode = envs["LLM_MODE"]
	envCfg.LLM.APIKey = envs["LLM_API_KEY"]
	if envCfg.LLM.APIKey == "" {
		envCfg.LLM.APIKey = envs["OPENAI_API_KEY"]
	}
	envCfg.LLM.BaseURL = envs["LLM_BASE_URL"]
	envCfg.LLM.Model = envs["LLM_MODEL"]
	if v := envs["LLM_TEMPERATURE"]; v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			envCfg.LLM.Temperature = float32(f)
		}
	}
	if v := envs["LLM_MAX_TOKENS"]; v != "" {
		envCfg.LLM.MaxTokens = parseInt(v)
	}
	if v := envs["LLM_TIMEOUT"]; v != "" {
		envCfg.LLM.Timeout, _ = parseDuration(v)
	}

	if v := envs["AVATAR_MAX_SIZE"]; v != "" {
		envCfg.Profile.AvatarMaxSize, _ = parseSizeBytes(v)
	}
	if v := envs["SENSOR_DISK_HIGH_PCT"]; v != "" {
		envCfg.Sensor.DiskHighPct = parseInt(v)
	}
	envCfg.Logging.Level = envs["LOG_LEVEL"]

	secrets := map[string]string{}
	for _, k := range secretEnvs {
		if v := envs[k]; v != "" {
			secrets[k] = v
		}
	}
	return envCfg, EnvResult{EnvUsed: envUsed, Secrets: secrets}
}

// decides which source wins (config flag > flags > config file > env) and
// resolves addr and db path. Secrets from the environment are layered on
// top of any source so they never need to live in a config file.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	switch {
	case flags.Set["config"]:
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Source = "config"
	case fileExists:
		res.Config = fileCfg
		res.Source = "config"
	default:
		res.Config = envCfg
		res.Source = "env"
	}

	if flags.Set["addr"] {
		host, port, err := net.SplitHostPort(flags.Addr)
		if err != nil {
			return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
		}
		res.Config.Server.Address = host
		res.Config.Server.Port, _ = strconv.Atoi(port)
		res.Source = "flags"
	}
	if flags.Set["db"] {
		res.Config.Server.DBPath = flags.DB
		res.Source = "flags"
	}
	if strings.TrimSpace(res.Config.Server.DBPath) == "" {
		if p := strings.TrimSpace(envCfg.Server.DBPath); p != "" {
			res.Config.Server.DBPath = p
		} else {
			res.Config.Server.DBPath = flags.DB
		}
	}

	applySecrets(res.Config, envRes.Secrets)

	if err := res.Config.ValidateConfig(); err != nil {
		return res, err
	}
	res.Addr = res.Config.Addr()
	res.DBPath = res.Config.Server.DBPath
	return res, nil
}

func applySecrets(c *Config, secrets map[string]string) {
	if v := secrets["JWT_SECRET"]; v != "" {
		c.Auth.JWTSecret = v
	}
	if v := secrets["LLM_API_KEY"]; v != "" {
		c.LLM.APIKey = v
	} else if v := secrets["OPENAI_API_KEY"]; v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := secrets["POSTGRES_DSN"]; v != "" {
		c.Store.PostgresDSN = v
	}
	if v := secrets["REDIS_PASSWORD"]; v != "" {
		c.Redis.Password = v
	}
}
