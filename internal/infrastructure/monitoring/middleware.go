package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Process request
		c.Next()

		// Label by route template to keep cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, respSize)
	}
}

// Timer measures an outbound call
type Timer struct {
	start   time.Time
	metrics *Metrics
	service string
	method  string
}

// NewTimer starts timing a call and raises the open-calls gauge
func NewTimer(metrics *Metrics, service, method string) *Timer {
	metrics.CallStarted()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		service: service,
		method:  method,
	}
}

// Stop records the call duration and lowers the open-calls gauge
func (t *Timer) Stop(status string) {
	t.metrics.CallFinished()
	t.metrics.RecordOutboundCall(t.service, t.method, status, time.Since(t.start))
}
