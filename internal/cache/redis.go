package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Plain client over a redis server.
type Redis struct {
	client *redis.Client
}

var _ Plain = (*Redis)(nil)

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis creates a go-redis client for addr and wraps it.
func DialRedis(addr string, db int, timeout time.Duration) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}))
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return value, err
}

func (r *Redis) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range items {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	return err
}

func (r *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return err
	}
	if !stored {
		return ErrNotStored
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCacheMiss
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
