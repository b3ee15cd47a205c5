package cache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/resilience"
)

// recordingPlain remembers the keys it was called with
type recordingPlain struct {
	*Memory
	keys []string
	err  error
}

func (r *recordingPlain) Get(ctx context.Context, key string) ([]byte, error) {
	r.keys = append(r.keys, key)
	if r.err != nil {
		return nil, r.err
	}
	return r.Memory.Get(ctx, key)
}

func (r *recordingPlain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.keys = append(r.keys, key)
	if r.err != nil {
		return r.err
	}
	return r.Memory.Set(ctx, key, value, ttl)
}

func TestAdapterDropsNamespace(t *testing.T) {
	ctx := context.Background()
	plain := &recordingPlain{Memory: NewMemory(0)}
	client := NewAdapter(plain)

	require.NoError(t, client.Set(ctx, "__appstats__42", []byte("v"), 0, "__appstats__"))
	got, err := client.Get(ctx, "__appstats__42", "some-other-namespace")
	require.NoError(t, err)

	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, []string{"__appstats__42", "__appstats__42"}, plain.keys)
}

func TestAdapterStubsUnsupportedOperations(t *testing.T) {
	ctx := context.Background()
	client := NewAdapter(NewMemory(0))

	assert.ErrorIs(t, client.AddMulti(ctx, map[string][]byte{"a": nil}, 0, "ns"), ErrNotSupported)
	assert.ErrorIs(t, client.ReplaceMulti(ctx, map[string][]byte{"a": nil}, 0, "ns"), ErrNotSupported)
	_, err := client.OffsetMulti(ctx, map[string]int64{"a": 1}, "ns")
	assert.ErrorIs(t, err, ErrNotSupported)
}

// exercisePlain checks the contract every backend shares
func exercisePlain(t *testing.T, plain Plain) {
	t.Helper()
	ctx := context.Background()

	_, err := plain.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, plain.Set(ctx, "k1", []byte("one"), time.Minute))
	require.NoError(t, plain.SetMulti(ctx, map[string][]byte{"k2": []byte("two"), "k3": []byte("three")}, 0))

	v, err := plain.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	multi, err := plain.GetMulti(ctx, []string{"k1", "k2", "nope", "k3"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"k1": []byte("one"),
		"k2": []byte("two"),
		"k3": []byte("three"),
	}, multi)

	assert.ErrorIs(t, plain.Add(ctx, "k1", []byte("again"), 0), ErrNotStored)
	require.NoError(t, plain.Add(ctx, "k4", []byte("four"), 0))

	require.NoError(t, plain.Delete(ctx, "k4"))
	assert.ErrorIs(t, plain.Delete(ctx, "k4"), ErrCacheMiss)
}

func TestMemoryBackend(t *testing.T) {
	exercisePlain(t, NewMemory(0))
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
	assert.Equal(t, 1, m.Len())
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	plain := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer plain.Close()

	exercisePlain(t, plain)

	mr.FastForward(2 * time.Minute)
	_, err := plain.Get(context.Background(), "k1")
	assert.ErrorIs(t, err, ErrCacheMiss, "ttl should expire k1")
}

func TestMemcacheHelpers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Equal(t, int32(0), expiration(0, now))
	assert.Equal(t, int32(1), expiration(10*time.Millisecond, now))
	assert.Equal(t, int32(90), expiration(90*time.Second, now))
	assert.Equal(t, int32(30*24*3600), expiration(30*24*time.Hour, now))

	// past thirty days memcached wants an absolute time
	assert.Equal(t, int32(1_700_000_000+31*24*3600), expiration(31*24*time.Hour, now))
	assert.Equal(t, int32(math.MaxInt32), expiration(200*365*24*time.Hour, now))

	assert.ErrorIs(t, translateMemcacheErr(memcache.ErrCacheMiss), ErrCacheMiss)
	assert.ErrorIs(t, translateMemcacheErr(memcache.ErrNotStored), ErrNotStored)
	assert.NoError(t, translateMemcacheErr(nil))

	other := errors.New("connection refused")
	assert.Equal(t, other, translateMemcacheErr(other))
}

func TestGuardTripsOnBackendFailures(t *testing.T) {
	ctx := context.Background()
	down := errors.New("dial tcp: connection refused")
	plain := &recordingPlain{Memory: NewMemory(0), err: down}
	guarded := Guard(plain, resilience.New("test", resilience.Settings{Failures: 2, Cooldown: time.Hour}))

	assert.ErrorIs(t, guarded.Set(ctx, "a", nil, 0), down)
	assert.ErrorIs(t, guarded.Set(ctx, "b", nil, 0), down)
	assert.ErrorIs(t, guarded.Set(ctx, "c", nil, 0), resilience.ErrCircuitOpen)

	assert.Equal(t, []string{"a", "b"}, plain.keys, "open breaker must not reach the backend")
}

func TestGuardIgnoresMisses(t *testing.T) {
	ctx := context.Background()
	guarded := Guard(NewMemory(0), resilience.New("test", resilience.Settings{
		Failures:  1,
		IsFailure: IsBackendFailure,
	}))

	for i := 0; i < 3; i++ {
		_, err := guarded.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}
	assert.Equal(t, resilience.StateClosed, guarded.Breaker().State())
}

func TestOpen(t *testing.T) {
	cfg := config.Default().Cache
	cfg.Backend = config.BackendMemory

	client, err := Open(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", []byte("v"), 0, "ns"))
	v, err := client.Get(ctx, "k", "ns")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	cfg.Backend = "floppy"
	_, err = Open(cfg, nil)
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default().Cache
	cfg.Backend = config.BackendRedis
	cfg.RedisAddr = mr.Addr()

	client, err := Open(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", []byte("v"), 0, "ns"))
	assert.True(t, mr.Exists("k"))
}
