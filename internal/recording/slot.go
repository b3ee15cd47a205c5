package recording

import (
	"context"
	"sync"
)

// TraceContext is the per-request handle the tracing backend hands out.
// Implementations must be comparable; pointer types are.
type TraceContext interface {
	PreCall(service, call, request string, payload interface{})
	PostCall(service, call, request string, payload interface{})
}

type contextKey string

const traceKey contextKey = "trace_context"

// carried is what Start leaves in the request context. A nil tc marks a
// request that went through Start but was not sampled.
type carried struct {
	tc TraceContext
}

// NewContext returns a copy of ctx carrying tc. A nil tc marks ctx as
// handled with no trace, so the ambient slot is never consulted for it.
func NewContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceKey, carried{tc: tc})
}

// FromContext returns the trace carried by ctx, or nil.
func FromContext(ctx context.Context) TraceContext {
	c, _ := fromContext(ctx)
	return c
}

// Handled reports whether ctx has passed through Start, sampled or not.
func Handled(ctx context.Context) bool {
	_, ok := fromContext(ctx)
	return ok
}

func fromContext(ctx context.Context) (TraceContext, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(traceKey).(carried)
	return c.tc, ok
}

// slot is the ambient trace holder. It has no stack discipline: a
// restore replaces whatever was there.
type slot struct {
	mu sync.Mutex
	tc TraceContext
}

func (s *slot) load() TraceContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tc
}

func (s *slot) store(tc TraceContext) {
	s.mu.Lock()
	s.tc = tc
	s.mu.Unlock()
}

// clear empties the slot only if it still holds tc.
func (s *slot) clear(tc TraceContext) {
	s.mu.Lock()
	if s.tc == tc {
		s.tc = nil
	}
	s.mu.Unlock()
}
