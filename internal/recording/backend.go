package recording

import (
	"context"
	"fmt"

	"github.com/bdarnell/tornado-tracing/internal/appstats"
)

// Backend creates and finalizes traces.
type Backend interface {
	// Start returns the trace for a new request, or nil when the request
	// is not traced.
	Start(env appstats.Environ) TraceContext
	// End finalizes tc with the response status.
	End(ctx context.Context, tc TraceContext, status int) error
}

// AppstatsBackend records traces with an appstats Library.
type AppstatsBackend struct {
	lib *appstats.Library
}

// NewAppstatsBackend creates a backend over lib.
func NewAppstatsBackend(lib *appstats.Library) *AppstatsBackend {
	return &AppstatsBackend{lib: lib}
}

func (b *AppstatsBackend) Start(env appstats.Environ) TraceContext {
	rec := b.lib.StartRecording(env)
	if rec == nil {
		// a nil *Recorder must not become a non-nil TraceContext
		return nil
	}
	return rec
}

func (b *AppstatsBackend) End(ctx context.Context, tc TraceContext, status int) error {
	rec, ok := tc.(*appstats.Recorder)
	if !ok {
		return fmt.Errorf("appstats backend: foreign trace context %T", tc)
	}
	_, err := b.lib.EndRecording(ctx, rec, status)
	return err
}
