package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned by Get when the key is absent.
	ErrCacheMiss = errors.New("cache: miss")
	// ErrNotStored is returned by Add when the key already exists.
	ErrNotStored = errors.New("cache: item not stored")
	// ErrNotSupported is returned by operations the plain clients lack.
	ErrNotSupported = errors.New("cache: operation not supported")
)

// Client is the memcache API the appstats library is written against.
// Every method takes the namespace the library wants its keys in.
type Client interface {
	Get(ctx context.Context, key, namespace string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string, namespace string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, namespace string) error
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration, namespace string) error
	Add(ctx context.Context, key string, value []byte, ttl time.Duration, namespace string) error
	Delete(ctx context.Context, key, namespace string) error

	AddMulti(ctx context.Context, items map[string][]byte, ttl time.Duration, namespace string) error
	ReplaceMulti(ctx context.Context, items map[string][]byte, ttl time.Duration, namespace string) error
	OffsetMulti(ctx context.Context, deltas map[string]int64, namespace string) (map[string]uint64, error)
}

// Plain is a namespace-less key-value client.
//
// GetMulti omits missing keys from the result rather than failing. A ttl
// of zero means no expiry.
type Plain interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Adapter presents a Plain client through the Client interface.
type Adapter struct {
	plain Plain
}

var _ Client = (*Adapter)(nil)

// NewAdapter wraps plain so it can be handed to the appstats library.
func NewAdapter(plain Plain) *Adapter {
	return &Adapter{plain: plain}
}

// Plain returns the wrapped client.
func (a *Adapter) Plain() Plain {
	return a.plain
}

// Close closes the wrapped client.
func (a *Adapter) Close() error {
	return a.plain.Close()
}

func (a *Adapter) Get(ctx context.Context, key, _ string) ([]byte, error) {
	return a.plain.Get(ctx, key)
}

func (a *Adapter) GetMulti(ctx context.Context, keys []string, _ string) (map[string][]byte, error) {
	return a.plain.GetMulti(ctx, keys)
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration, _ string) error {
	return a.plain.Set(ctx, key, value, ttl)
}

func (a *Adapter) SetMulti(ctx context.Context, items map[string][]byte, ttl time.Duration, _ string) error {
	return a.plain.SetMulti(ctx, items, ttl)
}

func (a *Adapter) Add(ctx context.Context, key string, value []byte, ttl time.Duration, _ string) error {
	return a.plain.Add(ctx, key, value, ttl)
}

func (a *Adapter) Delete(ctx context.Context, key, _ string) error {
	return a.plain.Delete(ctx, key)
}

func (a *Adapter) AddMulti(context.Context, map[string][]byte, time.Duration, string) error {
	return ErrNotSupported
}

func (a *Adapter) ReplaceMulti(context.Context, map[string][]byte, time.Duration, string) error {
	return ErrNotSupported
}

func (a *Adapter) OffsetMulti(context.Context, map[string]int64, string) (map[string]uint64, error) {
	return nil, ErrNotSupported
}
