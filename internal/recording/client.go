package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
	"github.com/bdarnell/tornado-tracing/internal/ioloop"
)

// ErrUnsupportedRequest is returned for request values Fetch cannot
// identify. No hook fires for them.
var ErrUnsupportedRequest = errors.New("recording: unsupported request type")

// Request is an outbound HTTP request. Method defaults to GET.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the outcome of a fetch. Error is set on transport failure
// and for status codes of 400 and above.
type Response struct {
	Request  *Request
	Code     int
	Header   http.Header
	Body     []byte
	Duration time.Duration
	Error    error
}

// HTTPError reports a response with an error status.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, http.StatusText(e.Code))
}

// identify turns the accepted request shapes into a Request.
func identify(request interface{}) (*Request, error) {
	switch req := request.(type) {
	case *Request:
		if req == nil {
			return nil, ErrUnsupportedRequest
		}
		out := *req
		if out.Method == "" {
			out.Method = http.MethodGet
		}
		return &out, nil
	case *http.Request:
		if req == nil || req.URL == nil {
			return nil, ErrUnsupportedRequest
		}
		out := &Request{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
		if out.Method == "" {
			out.Method = http.MethodGet
		}
		if req.Body != nil && req.Body != http.NoBody {
			body, err := io.ReadAll(req.Body)
			_ = req.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read request body: %w", err)
			}
			out.Body = body
		}
		return out, nil
	case string:
		return &Request{Method: http.MethodGet, URL: req}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRequest, request)
	}
}

// transport performs requests with resty over a pooled retryablehttp
// transport.
type transport struct {
	resty *resty.Client
}

func newTransport(cfg config.ClientConfig, logger *zap.Logger) *transport {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	client := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetLogger(restyLogger{logger.Sugar()})
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &transport{resty: client}
}

func (t *transport) do(ctx context.Context, req *Request) *Response {
	r := t.resty.R().SetContext(ctx)
	if len(req.Header) > 0 {
		r.SetHeaderMultiValues(req.Header)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	start := time.Now()
	res, err := r.Execute(req.Method, req.URL)
	resp := &Response{Request: req, Duration: time.Since(start)}
	if res != nil && res.RawResponse != nil {
		resp.Code = res.StatusCode()
		resp.Header = res.Header()
		resp.Body = res.Body()
	}

	switch {
	case err != nil:
		resp.Error = err
	case resp.Code >= http.StatusBadRequest:
		resp.Error = &HTTPError{Code: resp.Code}
	}
	return resp
}

// outcome is the metrics label for resp.
func outcome(resp *Response) string {
	if resp.Code == 0 {
		return "error"
	}
	return strconv.Itoa(resp.Code)
}

// HTTPClient is a blocking HTTP client whose calls are traced.
type HTTPClient struct {
	rec *Recording
	t   *transport
}

// NewHTTPClient creates a blocking client traced by rec.
func NewHTTPClient(rec *Recording, cfg config.ClientConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{rec: rec, t: newTransport(cfg, logging.OrNop(logger))}
}

// Fetch performs request, which may be a *Request, an *http.Request or a
// URL string. The post-call hook has fired by the time Fetch returns or
// panics.
func (c *HTTPClient) Fetch(ctx context.Context, request interface{}) (*Response, error) {
	req, err := identify(request)
	if err != nil {
		return nil, err
	}

	label := "error"
	finish := c.rec.begin(c.rec.Current(ctx), req)
	defer func() { finish(label) }()

	resp := c.t.do(ctx, req)
	label = outcome(resp)
	return resp, resp.Error
}

// AsyncHTTPClient is a non-blocking HTTP client whose completions are
// delivered on a loop.
type AsyncHTTPClient struct {
	rec    *Recording
	loop   *ioloop.Loop
	t      *transport
	logger *zap.Logger
}

// NewAsyncHTTPClient creates a client delivering completions on loop. A
// nil loop delivers them on the goroutine that ran the request.
func NewAsyncHTTPClient(rec *Recording, loop *ioloop.Loop, cfg config.ClientConfig, logger *zap.Logger) *AsyncHTTPClient {
	logger = logging.OrNop(logger)
	return &AsyncHTTPClient{rec: rec, loop: loop, t: newTransport(cfg, logger), logger: logger}
}

// Fetch starts request and returns at once. onComplete receives the
// response, with Error set on failure, after the trace of ctx has been
// restored and the post-call hook has fired.
func (c *AsyncHTTPClient) Fetch(ctx context.Context, request interface{}, onComplete func(*Response)) error {
	req, err := identify(request)
	if err != nil {
		return err
	}

	finish := c.rec.begin(c.rec.Current(ctx), req)
	deliver := WrapCallback(c.rec, ctx, func(resp *Response) {
		finish(outcome(resp))
		if onComplete != nil {
			onComplete(resp)
		}
	})

	go func() {
		resp := c.t.do(ctx, req)
		if c.loop == nil {
			deliver(resp)
			return
		}
		c.loop.AddCallback(func() { deliver(resp) })
	}()
	return nil
}

// restyLogger routes resty's diagnostics to zap.
type restyLogger struct {
	s *zap.SugaredLogger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.s.Warnf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
