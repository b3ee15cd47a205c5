package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/resilience"
)

// Guarded runs every call to a Plain client through a circuit breaker.
type Guarded struct {
	plain   Plain
	breaker *resilience.Breaker
}

var _ Plain = (*Guarded)(nil)

// Guard wraps plain with breaker.
func Guard(plain Plain, breaker *resilience.Breaker) *Guarded {
	return &Guarded{plain: plain, breaker: breaker}
}

// IsBackendFailure reports whether err says the backend is unhealthy.
// Misses and refused adds are normal answers.
func IsBackendFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrCacheMiss) && !errors.Is(err, ErrNotStored)
}

// Breaker returns the breaker guarding the client.
func (g *Guarded) Breaker() *resilience.Breaker {
	return g.breaker
}

func (g *Guarded) Get(ctx context.Context, key string) (value []byte, err error) {
	err = g.breaker.Do(func() error {
		value, err = g.plain.Get(ctx, key)
		return err
	})
	return value, err
}

func (g *Guarded) GetMulti(ctx context.Context, keys []string) (values map[string][]byte, err error) {
	err = g.breaker.Do(func() error {
		values, err = g.plain.GetMulti(ctx, keys)
		return err
	})
	return values, err
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.plain.Set(ctx, key, value, ttl)
	})
}

func (g *Guarded) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.plain.SetMulti(ctx, items, ttl)
	})
}

func (g *Guarded) Add(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.plain.Add(ctx, key, value, ttl)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.breaker.Do(func() error {
		return g.plain.Delete(ctx, key)
	})
}

func (g *Guarded) Close() error {
	return g.plain.Close()
}
