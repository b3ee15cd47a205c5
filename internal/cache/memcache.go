package cache

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcache is a Plain client over one or more memcached servers.
type Memcache struct {
	client *memcache.Client
}

var _ Plain = (*Memcache)(nil)

// NewMemcache connects lazily to the given servers ("host:port").
func NewMemcache(timeout time.Duration, servers ...string) *Memcache {
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Memcache{client: client}
}

func (m *Memcache) Get(_ context.Context, key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, translateMemcacheErr(err)
	}
	return item.Value, nil
}

func (m *Memcache) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	items, err := m.client.GetMulti(keys)
	if err != nil {
		return nil, translateMemcacheErr(err)
	}
	out := make(map[string][]byte, len(items))
	for key, item := range items {
		out[key] = item.Value
	}
	return out, nil
}

func (m *Memcache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return translateMemcacheErr(m.client.Set(&memcache.Item{Key: key, Value: value, Expiration: expiration(ttl, time.Now())}))
}

// SetMulti issues one Set per item; the text protocol has no batch store.
func (m *Memcache) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memcache) Add(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return translateMemcacheErr(m.client.Add(&memcache.Item{Key: key, Value: value, Expiration: expiration(ttl, time.Now())}))
}

func (m *Memcache) Delete(_ context.Context, key string) error {
	return translateMemcacheErr(m.client.Delete(key))
}

// Close is a no-op; gomemcache keeps a pool of idle connections that are
// reclaimed with the process.
func (m *Memcache) Close() error {
	return nil
}

// maxRelativeExpiration is the longest expiry memcached reads as relative
// seconds; anything larger is taken as a Unix timestamp.
const maxRelativeExpiration = 30 * 24 * time.Hour

func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		at := now.Add(ttl).Unix()
		if at > math.MaxInt32 {
			at = math.MaxInt32
		}
		return int32(at)
	}
	secs := int32(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

func translateMemcacheErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memcache.ErrCacheMiss):
		return ErrCacheMiss
	case errors.Is(err, memcache.ErrNotStored):
		return ErrNotStored
	default:
		return err
	}
}
