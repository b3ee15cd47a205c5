package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/resilience"
)

// Open builds the configured backend, guards it with a breaker and returns
// it wrapped for the appstats library.
func Open(cfg config.CacheConfig, logger *zap.Logger) (*Adapter, error) {
	logger = logging.OrNop(logger)

	var plain Plain
	switch cfg.Backend {
	case config.BackendMemcache:
		plain = NewMemcache(cfg.Timeout, cfg.MemcacheServers...)
	case config.BackendRedis:
		plain = DialRedis(cfg.RedisAddr, cfg.RedisDB, cfg.Timeout)
	case config.BackendMemory:
		plain = NewMemory(cfg.MemoryExpiration)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	breaker := resilience.New("cache-"+cfg.Backend, resilience.Settings{
		Failures:  cfg.BreakerFailures,
		Cooldown:  cfg.BreakerCooldown,
		IsFailure: IsBackendFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("cache breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	logger.Info("trace store configured",
		zap.String("backend", cfg.Backend),
		zap.Strings("memcache_servers", cfg.MemcacheServers),
		zap.String("redis_addr", cfg.RedisAddr),
	)

	return NewAdapter(Guard(plain, breaker)), nil
}
