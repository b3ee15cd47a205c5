package appstats

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/cache"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
)

// Library starts and ends recordings and persists finished ones.
type Library struct {
	opts   Options
	store  *Store
	logger *zap.Logger
	now    func() time.Time
	sample func() float64
}

// New creates a Library writing to client.
func New(opts Options, client cache.Client, logger *zap.Logger) *Library {
	return &Library{
		opts:   opts,
		store:  NewStore(client, opts),
		logger: logging.OrNop(logger).Named("appstats"),
		now:    time.Now,
		sample: rand.Float64,
	}
}

// Options returns the options the library was built with.
func (l *Library) Options() Options {
	return l.opts
}

// Store returns the record store, for the UI.
func (l *Library) Store() *Store {
	return l.store
}

// StartRecording begins a recording for env. It returns nil when the
// request falls outside RECORD_FRACTION.
func (l *Library) StartRecording(env Environ) *Recorder {
	if !l.shouldRecord() {
		return nil
	}
	rec := newRecorder(env, l.opts.MaxCalls, l.now)
	l.logger.Debug("recording started",
		zap.Stringer("id", rec.ID()),
		zap.String("method", env.Method),
		zap.String("path", env.Path),
	)
	return rec
}

// EndRecording finalizes rec with the response status and stores it.
// A nil recorder is a no-op. Ending twice stores once.
func (l *Library) EndRecording(ctx context.Context, rec *Recorder, status int) (Record, error) {
	if rec == nil {
		return Record{}, nil
	}

	record, first := rec.finish(status)
	if !first {
		return record, nil
	}

	if pending := record.PendingCalls(); pending > 0 {
		l.logger.Warn("recording ended with calls still open",
			zap.Stringer("id", record.ID),
			zap.Int("pending", pending),
		)
	}

	if err := l.store.Save(ctx, record); err != nil {
		return record, err
	}

	l.logger.Debug("recording stored",
		zap.Stringer("id", record.ID),
		zap.Int("status", status),
		zap.Int("calls", len(record.Calls)),
		zap.Duration("duration", record.Duration),
	)
	return record, nil
}

func (l *Library) shouldRecord() bool {
	switch {
	case l.opts.RecordFraction >= 1:
		return true
	case l.opts.RecordFraction <= 0:
		return false
	default:
		return l.sample() < l.opts.RecordFraction
	}
}
