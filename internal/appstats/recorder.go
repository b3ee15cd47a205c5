package appstats

import (
	"net/http"
	"sync"
	"time"

	"github.com/bdarnell/tornado-tracing/internal/shared/id"
)

// CallTrace is the timing of one outbound call made while handling a
// request.
type CallTrace struct {
	Service string `json:"service"`
	Call    string `json:"call"`
	Request string `json:"request"`
	// Offset is the call start relative to the request start.
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
	// Pending marks a call whose completion was never reported.
	Pending bool `json:"pending,omitempty"`
}

// Name is the "service.call" label used in summaries.
func (c CallTrace) Name() string {
	return c.Service + "." + c.Call
}

// Record is a finished recording.
type Record struct {
	ID       id.RecordID       `json:"id"`
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Query    string            `json:"query,omitempty"`
	Host     string            `json:"host,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Start    time.Time         `json:"start"`
	Duration time.Duration     `json:"duration"`
	Status   int               `json:"status"`
	Calls    []CallTrace       `json:"calls"`
	// Dropped counts calls beyond MAX_CALLS that were not kept.
	Dropped int `json:"dropped,omitempty"`
}

// PendingCalls counts calls without a completion.
func (r Record) PendingCalls() int {
	n := 0
	for _, c := range r.Calls {
		if c.Pending {
			n++
		}
	}
	return n
}

// recordedHeaders are the request headers kept in a record. Records are
// served by an unauthenticated UI, so credentials and cookies never make
// the list.
var recordedHeaders = map[string]struct{}{
	"Accept":            {},
	"Accept-Language":   {},
	"Content-Length":    {},
	"Content-Type":      {},
	"Referer":           {},
	"User-Agent":        {},
	"X-Forwarded-For":   {},
	"X-Forwarded-Proto": {},
	"X-Request-Id":      {},
}

type callKey struct {
	service, call, request string
}

// Recorder accumulates call traces for one request. It is the trace
// context handed around by the recording shim; all methods are safe for
// concurrent use.
type Recorder struct {
	mu       sync.Mutex
	record   Record
	started  []time.Time
	open     map[callKey][]int
	maxCalls int
	ended    bool
	now      func() time.Time
}

func newRecorder(env Environ, maxCalls int, now func() time.Time) *Recorder {
	start := now()

	headers := make(map[string]string)
	for k := range env.Header {
		if _, ok := recordedHeaders[http.CanonicalHeaderKey(k)]; ok {
			headers[http.CanonicalHeaderKey(k)] = env.Header.Get(k)
		}
	}

	return &Recorder{
		record: Record{
			ID:      id.NewRecordID(start),
			Method:  env.Method,
			Path:    env.Path,
			Query:   env.Query,
			Host:    env.Host,
			Headers: headers,
			Start:   start,
		},
		open:     make(map[callKey][]int),
		maxCalls: maxCalls,
		now:      now,
	}
}

// ID returns the record ID assigned at start.
func (r *Recorder) ID() id.RecordID {
	return r.record.ID
}

// PreCall opens a call trace. The payload is accepted for interface
// compatibility and not stored. A nil recorder ignores the call.
func (r *Recorder) PreCall(service, call, request string, _ interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return
	}
	if r.maxCalls > 0 && len(r.record.Calls) >= r.maxCalls {
		r.record.Dropped++
		return
	}

	now := r.now()
	key := callKey{service, call, request}
	r.record.Calls = append(r.record.Calls, CallTrace{
		Service: service,
		Call:    call,
		Request: request,
		Offset:  now.Sub(r.record.Start),
		Pending: true,
	})
	r.started = append(r.started, now)
	r.open[key] = append(r.open[key], len(r.record.Calls)-1)
}

// PostCall closes the oldest open call trace with the same identity.
// Calls with no matching PreCall are ignored.
func (r *Recorder) PostCall(service, call, request string, _ interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return
	}

	key := callKey{service, call, request}
	pending := r.open[key]
	if len(pending) == 0 {
		return
	}
	idx := pending[0]
	if len(pending) == 1 {
		delete(r.open, key)
	} else {
		r.open[key] = pending[1:]
	}

	r.record.Calls[idx].Duration = r.now().Sub(r.started[idx])
	r.record.Calls[idx].Pending = false
}

// OpenCalls reports how many calls are awaiting PostCall.
func (r *Recorder) OpenCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, pending := range r.open {
		n += len(pending)
	}
	return n
}

// Snapshot returns a copy of the record so far.
func (r *Recorder) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.copyRecord()
}

// finish stamps status and duration and freezes the recorder. Calls still
// open keep Pending and get their duration up to now.
func (r *Recorder) finish(status int) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return r.copyRecord(), false
	}
	r.ended = true

	now := r.now()
	r.record.Status = status
	r.record.Duration = now.Sub(r.record.Start)
	for _, pending := range r.open {
		for _, idx := range pending {
			r.record.Calls[idx].Duration = now.Sub(r.started[idx])
		}
	}
	return r.copyRecord(), true
}

func (r *Recorder) copyRecord() Record {
	out := r.record
	out.Calls = append([]CallTrace(nil), r.record.Calls...)
	return out
}
