// Package cache is the key-value store appstats persists trace records in.
//
// The appstats library talks to a memcache-shaped Client whose methods take
// a namespace argument, the way the App Engine memcache API does. Plain
// clients (memcache, redis, an in-process map) have no namespaces, so
// NewAdapter wraps a Plain client and drops the argument; the library
// already prefixes every key, so nothing collides. Operations appstats
// never issues (AddMulti, ReplaceMulti, OffsetMulti) exist on the adapter
// and return ErrNotSupported.
//
// Backends:
//   - NewMemcache: github.com/bradfitz/gomemcache
//   - NewRedis: github.com/redis/go-redis/v9
//   - NewMemory: github.com/patrickmn/go-cache, for development and tests
//
// Guard wraps any Plain client in a circuit breaker so a dead backend
// fails fast instead of stalling every recorded request.
package cache
