package recording

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdarnell/tornado-tracing/internal/appstats"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/monitoring"
)

func TestIdentify(t *testing.T) {
	req, err := identify("http://svc/a")
	require.NoError(t, err)
	assert.Equal(t, &Request{Method: http.MethodGet, URL: "http://svc/a"}, req)

	req, err = identify(&Request{URL: "http://svc/b"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "http://svc/b", req.URL)

	httpReq, err := http.NewRequest(http.MethodPost, "http://svc/c?x=1", bytes.NewBufferString("payload"))
	require.NoError(t, err)
	req, err = identify(httpReq)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://svc/c?x=1", req.URL)
	assert.Equal(t, []byte("payload"), req.Body)

	for _, bad := range []interface{}{42, nil, (*Request)(nil), struct{}{}} {
		_, err := identify(bad)
		assert.ErrorIs(t, err, ErrUnsupportedRequest)
	}
}

func TestFetchUnsupportedRequestFiresNoHooks(t *testing.T) {
	backend := newFakeBackend()
	rec := New(true, backend)
	ctx, _ := startTrace(t, rec, "/a")

	_, err := NewHTTPClient(rec, testClientConfig(), nil).Fetch(ctx, 42)
	assert.ErrorIs(t, err, ErrUnsupportedRequest)

	err = NewAsyncHTTPClient(rec, nil, testClientConfig(), nil).Fetch(ctx, 3.14, func(*Response) {
		t.Error("callback must not run")
	})
	assert.ErrorIs(t, err, ErrUnsupportedRequest)

	assert.Equal(t, []string{"start /a"}, backend.log.all())
}

func TestBlockingFetch(t *testing.T) {
	srv := delayServer(t)
	backend := newFakeBackend()
	rec := New(true, backend)
	ctx, _ := startTrace(t, rec, "/a")
	client := NewHTTPClient(rec, testClientConfig(), nil)

	url := srv.URL + "/delay?ms=5"
	resp, err := client.Fetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok 5", string(resp.Body))

	assert.Equal(t, []string{
		"start /a",
		"/a pre http GET " + url + " <nil>",
		"/a post http GET " + url + " <nil>",
	}, backend.log.all())
}

func TestBlockingFetchSendsHeaders(t *testing.T) {
	srv := delayServer(t)
	client := NewHTTPClient(New(false, nil), testClientConfig(), nil)

	resp, err := client.Fetch(context.Background(), srv.URL+"/agent")
	require.NoError(t, err)
	assert.Equal(t, "recording-test", string(resp.Body))

	resp, err = client.Fetch(context.Background(), &Request{
		URL:    srv.URL + "/agent",
		Header: http.Header{"User-Agent": []string{"override"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "override", string(resp.Body))
}

func TestBlockingFetchErrorFiresPostCallFirst(t *testing.T) {
	srv := delayServer(t)
	backend := newFakeBackend()
	rec := New(true, backend)
	ctx, _ := startTrace(t, rec, "/a")
	client := NewHTTPClient(rec, testClientConfig(), nil)

	resp, err := client.Fetch(ctx, srv.URL+"/fail")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	events := backend.log.all()
	assert.True(t, strings.HasPrefix(events[len(events)-1], "/a post"))

	closed := delayServer(t)
	closed.Close()
	_, err = client.Fetch(ctx, closed.URL+"/delay")
	require.Error(t, err)
	events = backend.log.all()
	assert.True(t, strings.HasPrefix(events[len(events)-1], "/a post"))
}

func TestBlockingFetchUsesSlotWithoutContext(t *testing.T) {
	srv := delayServer(t)
	backend := newFakeBackend()
	rec := New(true, backend)
	_, tc := startTrace(t, rec, "/a")
	require.Same(t, tc, rec.Save())

	_, err := NewHTTPClient(rec, testClientConfig(), nil).Fetch(context.Background(), srv.URL+"/delay")
	require.NoError(t, err)
	assert.Len(t, backend.log.all(), 3)
}

func TestUnsampledFetchStaysOutOfOtherTraces(t *testing.T) {
	srv := delayServer(t)
	loop := runLoop(t)
	backend := newFakeBackend()
	rec := New(true, backend)
	startTrace(t, rec, "/a")

	backend.skip = true
	ctxB := rec.Start(context.Background(), appstats.Environ{Method: http.MethodGet, Path: "/b"})

	_, err := NewHTTPClient(rec, testClientConfig(), nil).Fetch(ctxB, srv.URL+"/delay?ms=1")
	require.NoError(t, err)

	async := NewAsyncHTTPClient(rec, loop, testClientConfig(), nil)
	done := make(chan struct{})
	require.NoError(t, async.Fetch(ctxB, srv.URL+"/delay?ms=2", func(*Response) {
		assert.Nil(t, rec.Save())
		close(done)
	}))
	<-done

	assert.Equal(t, []string{"start /a", "start /b"}, backend.log.all())
}

func TestAsyncFetchDeliversExactResponse(t *testing.T) {
	srv := delayServer(t)
	loop := runLoop(t)
	backend := newFakeBackend()
	rec := New(true, backend, WithLoop(loop))
	ctx, tc := startTrace(t, rec, "/a")
	client := NewAsyncHTTPClient(rec, loop, testClientConfig(), nil)

	url := srv.URL + "/delay?ms=10"
	got := make(chan *Response, 1)
	require.NoError(t, client.Fetch(ctx, url, func(resp *Response) {
		assert.Same(t, tc, rec.Save())
		backend.log.add("callback")
		got <- resp
	}))

	resp := <-got
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok 10", string(resp.Body))
	assert.Equal(t, url, resp.Request.URL)
	assert.NoError(t, resp.Error)

	assert.Equal(t, []string{
		"start /a",
		"/a pre http GET " + url + " <nil>",
		"/a post http GET " + url + " <nil>",
		"callback",
	}, backend.log.all())
}

func TestAsyncFetchReportsErrorsInResponse(t *testing.T) {
	srv := delayServer(t)
	loop := runLoop(t)
	rec := New(true, newFakeBackend(), WithLoop(loop))
	ctx, _ := startTrace(t, rec, "/a")
	client := NewAsyncHTTPClient(rec, loop, testClientConfig(), nil)

	got := make(chan *Response, 1)
	require.NoError(t, client.Fetch(ctx, srv.URL+"/fail", func(resp *Response) { got <- resp }))

	resp := <-got
	var httpErr *HTTPError
	assert.ErrorAs(t, resp.Error, &httpErr)
}

// Two requests fan out overlapping calls; every completion must run with
// the trace of the request that issued it.
func TestAsyncInterleavedRequestsKeepTheirTraces(t *testing.T) {
	srv := delayServer(t)
	loop := runLoop(t)
	backend := newFakeBackend()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	rec := New(true, backend, WithLoop(loop), WithMetrics(metrics))
	client := NewAsyncHTTPClient(rec, loop, testClientConfig(), nil)

	ctxA, tcA := startTrace(t, rec, "/a")
	ctxB, tcB := startTrace(t, rec, "/b")

	var (
		wg         sync.WaitGroup
		mismatches []string
	)
	fetch := func(ctx context.Context, want TraceContext, ms string) {
		wg.Add(1)
		require.NoError(t, client.Fetch(ctx, srv.URL+"/delay?ms="+ms, func(resp *Response) {
			defer wg.Done()
			if rec.Save() != want {
				mismatches = append(mismatches, ms)
			}
			// a follow-up scheduled from inside the callback inherits the trace
			wg.Add(1)
			rec.AddCallback(ctx, func() {
				defer wg.Done()
				if rec.Save() != want {
					mismatches = append(mismatches, ms+" follow-up")
				}
			})
		}))
	}

	fetch(ctxA, tcA, "50")
	fetch(ctxB, tcB, "20")
	fetch(ctxA, tcA, "30")
	fetch(ctxB, tcB, "5")
	wg.Wait()

	assert.Empty(t, mismatches)
	assert.Zero(t, testutil.ToFloat64(metrics.OpenCalls))

	var preA, postA, preB, postB int
	for _, e := range backend.log.all() {
		switch {
		case strings.HasPrefix(e, "/a pre"):
			preA++
		case strings.HasPrefix(e, "/a post"):
			postA++
		case strings.HasPrefix(e, "/b pre"):
			preB++
		case strings.HasPrefix(e, "/b post"):
			postB++
		}
	}
	assert.Equal(t, []int{2, 2, 2, 2}, []int{preA, postA, preB, postB})
}

func TestAbandonedCallKeepsGaugeRaised(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	rec := New(true, newFakeBackend(), WithMetrics(metrics))
	tc := &fakeTrace{name: "/a", log: &eventLog{}}

	finish := rec.begin(tc, &Request{Method: http.MethodGet, URL: "http://svc"})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OpenCalls))

	finish("200")
	assert.Zero(t, testutil.ToFloat64(metrics.OpenCalls))
}
