package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by the *_BACKEND variables.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// MaxGridSize keeps coordinates within a SMALLINT column.
const MaxGridSize = 1000

type Config struct {
	Port     string
	LogLevel string

	// Grid
	GridSize      int
	PixelCooldown time.Duration
	GridPrefill   bool
	JWTSecret     string

	// Storage
	StoreBackend string
	DatabaseURL  string
	QueryTimeout time.Duration

	// Rate limiting
	RateLimitBackend string
	RedisURL         string
	RateLimitIdleTTL time.Duration

	// History log
	HistoryBackend         string
	HistoryStream          string
	HistoryStreamMaxLen    int
	HistoryQueueSize       int
	HistoryBreakerFailures int
	HistoryBreakerReset    time.Duration

	// Live feed
	FeedBuffer       int
	FeedPingInterval time.Duration

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GridSize:      getEnvInt("GRID_SIZE", 50),
		PixelCooldown: getEnvDuration("PIXEL_COOLDOWN", 30*time.Second),
		GridPrefill:   getEnvBool("GRID_PREFILL", false),
		JWTSecret:     getEnvRequired("JWT_ACCESS_SECRET", "JWT_SECRET"),

		StoreBackend: getEnv("STORE_BACKEND", BackendPostgres),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 5*time.Second),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", BackendMemory),
		RedisURL:         getEnv("REDIS_URL", ""),
		RateLimitIdleTTL: getEnvDuration("RATE_LIMIT_IDLE_TTL", 15*time.Minute),

		HistoryBackend:         getEnv("HISTORY_BACKEND", BackendPostgres),
		HistoryStream:          getEnv("HISTORY_STREAM", "pixelgrid:history"),
		HistoryStreamMaxLen:    getEnvInt("HISTORY_STREAM_MAXLEN", 100_000),
		HistoryQueueSize:       getEnvInt("HISTORY_QUEUE_SIZE", 1024),
		HistoryBreakerFailures: getEnvInt("HISTORY_BREAKER_FAILURES", 5),
		HistoryBreakerReset:    getEnvDuration("HISTORY_BREAKER_RESET", 30*time.Second),

		FeedBuffer:       getEnvInt("FEED_BUFFER", 64),
		FeedPingInterval: getEnvDuration("FEED_PING_INTERVAL", 30*time.Second),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.GridSize < 1 || c.GridSize > MaxGridSize {
		errs = append(errs, fmt.Errorf("GRID_SIZE must be in 1..%d, got %d", MaxGridSize, c.GridSize))
	}
	if c.PixelCooldown <= 0 {
		errs = append(errs, fmt.Errorf("PIXEL_COOLDOWN must be positive, got %s", c.PixelCooldown))
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres requires DATABASE_URL"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend))
	}

	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitBackend))
	}

	switch c.HistoryBackend {
	case BackendNone:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("HISTORY_BACKEND=postgres requires DATABASE_URL"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("HISTORY_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_BACKEND must be postgres, redis or none, got %q", c.HistoryBackend))
	}

	if c.HistoryQueueSize < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_QUEUE_SIZE must be positive, got %d", c.HistoryQueueSize))
	}
	if c.FeedBuffer < 1 {
		errs = append(errs, fmt.Errorf("FEED_BUFFER must be positive, got %d", c.FeedBuffer))
	}
	if c.FeedPingInterval <= 0 {
		errs = append(errs, fmt.Errorf("FEED_PING_INTERVAL must be positive, got %s", c.FeedPingInterval))
	}

	return errors.Join(errs...)
}

// NeedsPostgres reports whether any component is backed by DATABASE_URL.
func (c Config) NeedsPostgres() bool {
	return c.StoreBackend == BackendPostgres || c.HistoryBackend == BackendPostgres
}

// NeedsRedis reports whether any component is backed by REDIS_URL.
func (c Config) NeedsRedis() bool {
	return c.RateLimitBackend == BackendRedis || c.HistoryBackend == BackendRedis
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// getEnvRequired returns the first of keys that is set, panicking if none is.
func getEnvRequired(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	panic("required environment variable " + strings.Join(keys, " or ") + " is not set")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
