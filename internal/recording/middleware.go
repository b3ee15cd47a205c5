package recording

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bdarnell/tornado-tracing/internal/appstats"
)

// Middleware traces every request that passes through it: Start before
// the handlers run, End with the status they produced. A handler panic is
// recorded as 500.
func (r *Recording) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.enabled {
			c.Next()
			return
		}
		r.trace(c, c.Next)
	}
}

// Fallback serves h under tracing. Requests Middleware already handled,
// sampled or not, are passed straight through.
func (r *Recording) Fallback(h http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		serve := func() { h.ServeHTTP(c.Writer, c.Request) }
		if !r.enabled || Handled(c.Request.Context()) {
			serve()
			return
		}
		r.trace(c, serve)
	}
}

func (r *Recording) trace(c *gin.Context, next func()) {
	ctx := r.Start(c.Request.Context(), appstats.NewEnviron(c.Request))
	c.Request = c.Request.WithContext(ctx)

	status := http.StatusInternalServerError
	defer func() { r.End(ctx, status) }()

	next()
	status = c.Writer.Status()
}
