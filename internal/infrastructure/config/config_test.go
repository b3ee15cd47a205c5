package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8888", cfg.Server.Address())

	// Tracing is opt-in
	assert.False(t, cfg.Appstats.Enabled)
	assert.Equal(t, "/appstats", cfg.Appstats.MountPrefix)

	assert.Equal(t, BackendMemcache, cfg.Cache.Backend)
	assert.Equal(t, []string{"localhost:11211"}, cfg.Cache.MemcacheServers)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 20, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Cache, cfg.Cache)
	assert.Equal(t, def.Client, cfg.Client)
	assert.Equal(t, def.Appstats.Enabled, cfg.Appstats.Enabled)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                  "9000",
		"HOST":                  "127.0.0.1",
		"APPSTATS_ENABLED":      "true",
		"APPSTATS_OPTIONS":      "RECORD_FRACTION:0.5,KEY_PREFIX:__myapp__",
		"APPSTATS_OPTIONS_FILE": "/etc/appstats.yaml",
		"APPSTATS_MOUNT":        "/_stats",
		"CACHE_BACKEND":         "redis",
		"REDIS_ADDR":            "redis:6379",
		"MEMCACHE_SERVERS":      "mc1:11211,mc2:11211",
		"CACHE_TIMEOUT":         "250ms",
		"HTTP_CLIENT_RETRIES":   "0",
		"LOG_LEVEL":             "debug",
		"LOG_DEV":               "true",
		"RATE_LIMIT_ENABLED":    "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.True(t, cfg.Appstats.Enabled)
	assert.Equal(t, map[string]string{
		"RECORD_FRACTION": "0.5",
		"KEY_PREFIX":      "__myapp__",
	}, cfg.Appstats.Options)
	assert.Equal(t, "/etc/appstats.yaml", cfg.Appstats.OptionsFile)
	assert.Equal(t, "/_stats", cfg.Appstats.MountPrefix)

	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, []string{"mc1:11211", "mc2:11211"}, cfg.Cache.MemcacheServers)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.Timeout)

	assert.Equal(t, 0, cfg.Client.Retries)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "floppy")

	_, err := Load()
	assert.Error(t, err)

	// LoadOrDefault swallows the error
	cfg := LoadOrDefault()
	assert.Equal(t, BackendMemcache, cfg.Cache.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory backend", func(c *Config) { c.Cache.Backend = BackendMemory }, false},
		{"memcache without servers", func(c *Config) { c.Cache.MemcacheServers = nil }, true},
		{"redis without memcache servers", func(c *Config) {
			c.Cache.Backend = BackendRedis
			c.Cache.MemcacheServers = nil
		}, false},
		{"negative retries", func(c *Config) { c.Client.Retries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
