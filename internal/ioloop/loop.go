package ioloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
)

// ErrStopped is returned by Do once the loop has been stopped.
var ErrStopped = errors.New("ioloop: stopped")

// Loop runs queued callbacks sequentially.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}

	stop     chan struct{}
	stopOnce sync.Once

	singleRunLock sync.Mutex
	logger        *zap.Logger
}

// New creates a loop. It does nothing until Run is called.
func New(logger *zap.Logger) *Loop {
	return &Loop{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		logger: logging.OrNop(logger).Named("ioloop"),
	}
}

// AddCallback queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) AddCallback(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Timeout is a callback scheduled with AddTimeout.
type Timeout struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancel prevents the callback from running if it has not started yet.
func (t *Timeout) Cancel() {
	t.cancelled.Store(true)
	t.timer.Stop()
}

// AddTimeout queues fn to run on the loop after d.
func (l *Loop) AddTimeout(d time.Duration, fn func()) *Timeout {
	t := &Timeout{}
	t.timer = time.AfterFunc(d, func() {
		l.AddCallback(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.AddCallback(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrStopped
	}
}

// Run processes callbacks until ctx is done or Stop is called. Only one
// Run may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.singleRunLock.Lock()
	defer l.singleRunLock.Unlock()

	for {
		for _, fn := range l.take() {
			l.invoke(fn)
		}

		select {
		case <-l.notify:
		case <-l.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop makes Run return after the callback in progress.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Pending reports the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.queue
	l.queue = nil
	return batch
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	fn()
}
