package api

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	ServerDBPath    string
	ShutdownTimeout time.Duration
	AllowSignup     bool
	LoginTTL        time.Duration // how long a device login stays open (default: 15m)
	BaseURL         string
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	RateLimitAuth      int // /auth/* per IP per minute (default: 10)
	RateLimitFavorites int // /v1/favorites* per API key per minute (default: 120)
	RateLimitOther     int // other authenticated routes per API key per minute (default: 300)

	CORSAllowedOrigins []string // origins allowed to call the public catalog; empty = disabled

	RedisAddr string        // favorites cache; empty = no cache
	CacheTTL  time.Duration // favorites cache entry lifetime (default: 5m)

	AuthEventRetention      time.Duration // default: 90 days
	RateLimitEventRetention time.Duration // default: 30 days
}

// LoadConfig reads configuration from TIPBOX_* environment variables.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		ServerDBPath:    "./data/server.db",
		ShutdownTimeout: 30 * time.Second,
		AllowSignup:     true,
		LoginTTL:        serverdb.AuthRequestTTL,
		BaseURL:         "http://localhost:8080",
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitAuth:      10,
		RateLimitFavorites: 120,
		RateLimitOther:     300,

		CacheTTL: 5 * time.Minute,

		AuthEventRetention:      90 * 24 * time.Hour,
		RateLimitEventRetention: 30 * 24 * time.Hour,
	}

	if v := os.Getenv("TIPBOX_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TIPBOX_SERVER_DB_PATH"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("TIPBOX_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("TIPBOX_ALLOW_SIGNUP"); v == "false" || v == "0" {
		cfg.AllowSignup = false
	}
	if v := os.Getenv("TIPBOX_LOGIN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.LoginTTL = d
		}
	}
	if v := os.Getenv("TIPBOX_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("TIPBOX_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TIPBOX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	setPositiveInt(&cfg.RateLimitAuth, "TIPBOX_RATE_LIMIT_AUTH")
	setPositiveInt(&cfg.RateLimitFavorites, "TIPBOX_RATE_LIMIT_FAVORITES")
	setPositiveInt(&cfg.RateLimitOther, "TIPBOX_RATE_LIMIT_OTHER")

	if v := os.Getenv("TIPBOX_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("TIPBOX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("TIPBOX_AUTH_EVENT_RETENTION"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.AuthEventRetention = d
		}
	}
	if v := os.Getenv("TIPBOX_RATE_LIMIT_EVENT_RETENTION"); v != "" {
		if d := parseDaysDuration(v); d > 0 {
			cfg.RateLimitEventRetention = d
		}
	}

	if v := os.Getenv("TIPBOX_CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg
}

func setPositiveInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// parseDaysDuration parses "90d" style durations, falling back to
// time.ParseDuration.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if num, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(num); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
