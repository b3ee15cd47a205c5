/*
Package resilience provides the circuit breaker that guards the trace store.

Recording must never slow the request it observes. When the cache backend
(memcache, redis) is down every EndRecording would otherwise wait for a
network timeout; the breaker turns that into an immediate ErrCircuitOpen
after a run of failures.

# Usage

	breaker := resilience.New("cache", resilience.Settings{
		Failures: 5,
		Cooldown: 30 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, cache.ErrCacheMiss)
		},
	})

	err := breaker.Do(func() error {
		return client.Set(key, value)
	})

# States

	Closed --[Failures consecutive failures]-> Open --[Cooldown]-> Half-Open
	Half-Open --[Probes successes]-> Closed
	Half-Open --[failure]-> Open
*/
package resilience
