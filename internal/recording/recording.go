package recording

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/appstats"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/monitoring"
	"github.com/bdarnell/tornado-tracing/internal/ioloop"
)

// Kind is the service name reported for intercepted HTTP calls.
const Kind = "http"

// Recording ties request tracing to a backend and an ambient slot.
type Recording struct {
	enabled bool
	backend Backend
	loop    *ioloop.Loop
	logger  *zap.Logger
	metrics *monitoring.Metrics

	slot slot
}

// Option configures a Recording.
type Option func(*Recording)

// WithLoop binds the ambient slot through loop callbacks instead of
// directly from the request goroutine.
func WithLoop(loop *ioloop.Loop) Option {
	return func(r *Recording) { r.loop = loop }
}

// WithLogger sets the logger for store failures and warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recording) { r.logger = logger }
}

// WithMetrics counts recordings and intercepted calls.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Recording) { r.metrics = metrics }
}

// New creates a Recording. When enabled is false every hook is a no-op
// and backend may be nil.
func New(enabled bool, backend Backend, opts ...Option) *Recording {
	r := &Recording{enabled: enabled && backend != nil, backend: backend}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).Named("recording")
	return r
}

// Enabled reports whether tracing is on.
func (r *Recording) Enabled() bool {
	return r.enabled
}

// Save returns the trace in the ambient slot, or nil.
func (r *Recording) Save() TraceContext {
	return r.slot.load()
}

// Restore puts tc in the ambient slot, replacing what was there.
func (r *Recording) Restore(tc TraceContext) {
	r.slot.store(tc)
}

// Current returns the trace carried by ctx. Only contexts that never
// passed through Start fall back to the slot.
func (r *Recording) Current(ctx context.Context) TraceContext {
	if !r.enabled {
		return nil
	}
	if tc, ok := fromContext(ctx); ok {
		return tc
	}
	return r.Save()
}

// Start begins tracing a request and returns ctx carrying the trace.
func (r *Recording) Start(ctx context.Context, env appstats.Environ) context.Context {
	if !r.enabled {
		return ctx
	}

	tc := r.backend.Start(env)
	if tc == nil {
		r.count(monitoring.OutcomeSkipped)
		r.onLoop(func() { r.Restore(nil) })
		return NewContext(ctx, nil)
	}
	r.count(monitoring.OutcomeStarted)

	r.onLoop(func() { r.Restore(tc) })
	return NewContext(ctx, tc)
}

// End finalizes the trace carried by ctx with status. Store failures are
// logged and never reach the caller.
func (r *Recording) End(ctx context.Context, status int) {
	if !r.enabled {
		return
	}
	tc := FromContext(ctx)
	if tc == nil {
		return
	}

	if err := r.backend.End(context.WithoutCancel(ctx), tc, status); err != nil {
		r.count(monitoring.OutcomeFailed)
		r.logger.Error("failed to store recording", zap.Int("status", status), zap.Error(err))
	} else {
		r.count(monitoring.OutcomeStored)
	}

	r.onLoop(func() { r.slot.clear(tc) })
}

// Wrap returns fn bound to the trace of ctx: when it runs, the slot is
// first restored to that trace.
func (r *Recording) Wrap(ctx context.Context, fn func()) func() {
	if !r.enabled {
		return fn
	}
	tc := r.Current(ctx)
	return func() {
		r.Restore(tc)
		fn()
	}
}

// WrapCallback is Wrap for callbacks that take an argument.
func WrapCallback[T any](r *Recording, ctx context.Context, cb func(T)) func(T) {
	if !r.enabled {
		return cb
	}
	tc := r.Current(ctx)
	return func(v T) {
		r.Restore(tc)
		cb(v)
	}
}

// AddCallback schedules fn on the loop under the trace of ctx. Without a
// loop fn runs immediately.
func (r *Recording) AddCallback(ctx context.Context, fn func()) {
	r.onLoop(r.Wrap(ctx, fn))
}

// AddTimeout schedules fn on the loop after d under the trace of ctx.
// Without a loop fn runs on a timer goroutine and the result is nil.
func (r *Recording) AddTimeout(ctx context.Context, d time.Duration, fn func()) *ioloop.Timeout {
	wrapped := r.Wrap(ctx, fn)
	if r.loop == nil {
		time.AfterFunc(d, wrapped)
		return nil
	}
	return r.loop.AddTimeout(d, wrapped)
}

// begin fires the pre-call hook for req and returns the matching
// post-call, which takes the outcome label for metrics.
func (r *Recording) begin(tc TraceContext, req *Request) func(outcome string) {
	var timer *monitoring.Timer
	if r.metrics != nil {
		timer = monitoring.NewTimer(r.metrics, Kind, req.Method)
	}
	if tc != nil {
		tc.PreCall(Kind, req.Method, req.URL, nil)
	}

	return func(outcome string) {
		if tc != nil {
			tc.PostCall(Kind, req.Method, req.URL, nil)
		}
		if timer != nil {
			timer.Stop(outcome)
		}
	}
}

func (r *Recording) onLoop(fn func()) {
	if r.loop == nil {
		fn()
		return
	}
	r.loop.AddCallback(fn)
}

func (r *Recording) count(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordRecording(outcome)
	}
}
