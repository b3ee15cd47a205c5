package http

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/monitoring"
	"github.com/bdarnell/tornado-tracing/internal/ioloop"
	"github.com/bdarnell/tornado-tracing/internal/recording"
)

// maxDelay caps /delay so a request cannot park a handler indefinitely.
const maxDelay = 10 * time.Second

// Handlers serves the demo endpoints. Fetch callbacks are delivered on
// loop, which must be running.
type Handlers struct {
	rec      *recording.Recording
	client   *recording.AsyncHTTPClient
	loop     *ioloop.Loop
	metrics  *monitoring.Metrics
	uiPrefix string
	logger   *zap.Logger
}

// NewHandlers creates the demo handlers. uiPrefix is where the appstats UI
// is mounted, for the link on the root page.
func NewHandlers(
	rec *recording.Recording,
	client *recording.AsyncHTTPClient,
	loop *ioloop.Loop,
	metrics *monitoring.Metrics,
	uiPrefix string,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		rec:      rec,
		client:   client,
		loop:     loop,
		metrics:  metrics,
		uiPrefix: uiPrefix,
		logger:   logging.OrNop(logger).Named("handlers"),
	}
}

// Delay answers "ok" after ms milliseconds, timed on the loop.
func (h *Handlers) Delay(c *gin.Context) {
	ctx := c.Request.Context()

	ms, err := strconv.Atoi(c.DefaultQuery("ms", "0"))
	if err != nil || ms < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "ms must be a non-negative integer",
		})
		return
	}
	delay := time.Duration(ms) * time.Millisecond
	if delay > maxDelay {
		delay = maxDelay
	}

	done := make(chan struct{})
	timeout := h.rec.AddTimeout(ctx, delay, func() { close(done) })

	select {
	case <-done:
		c.String(http.StatusOK, "ok")
	case <-ctx.Done():
		if timeout != nil {
			timeout.Cancel()
		}
	}
}

type fetchResult struct {
	URL      string
	Code     int
	Duration time.Duration
}

var rootTemplate = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head><title>tornado-tracing demo</title></head>
<body>
<ul>
{{range .Results}}<li>{{.URL}}: {{.Code}} in {{.Duration}}</li>
{{end}}</ul>
<p>Done. See <a href="{{.UI}}/">appstats</a>.</p>
</body>
</html>
`))

// Root fetches /delay?ms=100, then /delay?ms=50, 20 and 30 concurrently,
// and reports the timings with a link to the UI.
func (h *Handlers) Root(c *gin.Context) {
	ctx := c.Request.Context()
	base := requestBase(c.Request)

	var (
		results []fetchResult
		failure error
	)
	done := make(chan struct{})

	// callbacks below run on the loop, one at a time
	collect := func(resp *recording.Response) bool {
		results = append(results, fetchResult{URL: resp.Request.URL, Code: resp.Code, Duration: resp.Duration})
		if resp.Error != nil && failure == nil {
			failure = fmt.Errorf("fetch %s: %w", resp.Request.URL, resp.Error)
		}
		return failure == nil
	}

	start := func(url string, cb func(*recording.Response)) {
		if err := h.client.Fetch(ctx, url, cb); err != nil {
			failed := &recording.Response{Request: &recording.Request{Method: http.MethodGet, URL: url}, Error: err}
			h.loop.AddCallback(func() { cb(failed) })
		}
	}

	start(base+"/delay?ms=100", func(resp *recording.Response) {
		if !collect(resp) {
			close(done)
			return
		}

		remaining := 3
		for _, ms := range []int{50, 20, 30} {
			start(fmt.Sprintf("%s/delay?ms=%d", base, ms), func(resp *recording.Response) {
				collect(resp)
				remaining--
				if remaining == 0 {
					close(done)
				}
			})
		}
	})

	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	if failure != nil {
		h.logger.Warn("demo fan-out failed", zap.Error(failure))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": failure.Error(),
		})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := rootTemplate.Execute(c.Writer, gin.H{"Results": results, "UI": h.uiPrefix}); err != nil {
		h.logger.Warn("render root page", zap.Error(err))
	}
}

// Health reports liveness and the tracing counters.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"tracing": h.rec.Enabled(),
	}
	if h.loop != nil {
		body["loop_pending"] = h.loop.Pending()
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// EchoHandler is a plain http.Handler describing the request it got.
func EchoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s %s\n", r.Method, r.URL.RequestURI())
	})
}

func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
