package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends understood by the cache package.
const (
	BackendMemcache = "memcache"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Appstats  AppstatsConfig
	Cache     CacheConfig
	Client    ClientConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8888"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// AppstatsConfig holds the tracing switch and the options handed to the
// appstats library. Options are forwarded verbatim; this package does not
// interpret them.
type AppstatsConfig struct {
	Enabled     bool              `envconfig:"APPSTATS_ENABLED" default:"false"`
	Options     map[string]string `envconfig:"APPSTATS_OPTIONS"`
	OptionsFile string            `envconfig:"APPSTATS_OPTIONS_FILE"`
	MountPrefix string            `envconfig:"APPSTATS_MOUNT" default:"/appstats"`
}

// CacheConfig selects and configures the store appstats persists records in.
type CacheConfig struct {
	Backend          string        `envconfig:"CACHE_BACKEND" default:"memcache"`
	MemcacheServers  []string      `envconfig:"MEMCACHE_SERVERS" default:"localhost:11211"`
	RedisAddr        string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	Timeout          time.Duration `envconfig:"CACHE_TIMEOUT" default:"100ms"`
	BreakerFailures  uint32        `envconfig:"CACHE_BREAKER_FAILURES" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"CACHE_BREAKER_COOLDOWN" default:"30s"`
	MemoryExpiration time.Duration `envconfig:"CACHE_MEMORY_EXPIRATION" default:"1h"`
}

// ClientConfig holds settings for the outbound HTTP clients.
type ClientConfig struct {
	Timeout      time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	Retries      int           `envconfig:"HTTP_CLIENT_RETRIES" default:"2"`
	RetryWaitMin time.Duration `envconfig:"HTTP_CLIENT_RETRY_WAIT_MIN" default:"100ms"`
	RetryWaitMax time.Duration `envconfig:"HTTP_CLIENT_RETRY_WAIT_MAX" default:"2s"`
	UserAgent    string        `envconfig:"HTTP_CLIENT_USER_AGENT" default:"tornado-tracing/1.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting for the appstats UI mount.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings no component can act on.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendMemcache, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendMemcache && len(c.Cache.MemcacheServers) == 0 {
		return fmt.Errorf("memcache backend needs at least one server")
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("negative client retries: %d", c.Client.Retries)
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8888",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Appstats: AppstatsConfig{
			Enabled:     false,
			MountPrefix: "/appstats",
		},
		Cache: CacheConfig{
			Backend:          BackendMemcache,
			MemcacheServers:  []string{"localhost:11211"},
			RedisAddr:        "localhost:6379",
			Timeout:          100 * time.Millisecond,
			BreakerFailures:  5,
			BreakerCooldown:  30 * time.Second,
			MemoryExpiration: time.Hour,
		},
		Client: ClientConfig{
			Timeout:      30 * time.Second,
			Retries:      2,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			UserAgent:    "tornado-tracing/1.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
