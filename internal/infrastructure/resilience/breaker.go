package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Failures is the number of consecutive failures that opens the circuit
	Failures uint32
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of half-open successes that close the circuit.
	// It also caps concurrent calls while half-open.
	Probes uint32
	// IsFailure decides whether an error counts against the backend.
	// Nil means every non-nil error does.
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the current state
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker stops calling a backend after repeated failures and probes it
// again once the cooldown has elapsed.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	inFlight uint32
	now      func() time.Time
}

// New creates a circuit breaker, filling zero settings with defaults
func New(name string, settings Settings) *Breaker {
	if settings.Failures == 0 {
		settings.Failures = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving open to half-open once the
// cooldown has passed
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	return b.state
}

// Counts returns a copy of the counts for the current state
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Do runs fn unless the circuit is open. The error from fn is returned
// unchanged; a panic in fn counts as a failure and is re-raised.
func (b *Breaker) Do(fn func() error) (err error) {
	if err := b.admit(); err != nil {
		return err
	}

	failed := true
	defer func() {
		b.settle(failed)
	}()

	err = fn()
	failed = b.settings.IsFailure(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.inFlight >= b.settings.Probes {
			return ErrTooManyRequests
		}
	}

	b.inFlight++
	b.counts.Requests++
	return nil
}

func (b *Breaker) settle(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inFlight--
	if failed {
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
	} else {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	}

	switch b.state {
	case StateClosed:
		if failed && b.counts.ConsecutiveFailures >= b.settings.Failures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if failed {
			b.transition(StateOpen)
		} else if b.counts.ConsecutiveSuccesses >= b.settings.Probes {
			b.transition(StateClosed)
		}
	}
}

// refresh must be called with mu held
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen)
	}
}

// transition must be called with mu held
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}

	from := b.state
	b.state = to
	b.counts = Counts{}
	if to == StateOpen {
		b.openedAt = b.now()
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
