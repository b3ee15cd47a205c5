package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Plain client.
type Memory struct {
	items *gocache.Cache
}

var _ Plain = (*Memory)(nil)

// NewMemory creates an in-process store. defaultTTL applies when Set is
// called with a zero ttl; zero here means items never expire.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &Memory{items: gocache.New(defaultTTL, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return v.([]byte), nil
}

func (m *Memory) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, key := range keys {
		if v, err := m.Get(ctx, key); err == nil {
			out[key] = v
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, copyBytes(value), memoryTTL(ttl))
	return nil
}

func (m *Memory) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		_ = m.Set(ctx, key, value, ttl)
	}
	return nil
}

func (m *Memory) Add(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.items.Add(key, copyBytes(value), memoryTTL(ttl)); err != nil {
		return ErrNotStored
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if _, ok := m.items.Get(key); !ok {
		return ErrCacheMiss
	}
	m.items.Delete(key)
	return nil
}

func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}

// Len reports the number of live items.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
