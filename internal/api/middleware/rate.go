package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
)

// clientIdle is how long a client's limiter survives without requests.
const clientIdle = 5 * time.Minute

// RateLimit creates a per-IP rate limiting middleware. It passes every
// request through when cfg.Enabled is false.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	clients := gocache.New(clientIdle, time.Minute)

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if v, ok := clients.Get(ip); ok {
			limiter := v.(*rate.Limiter)
			// refresh the idle deadline
			clients.SetDefault(ip, limiter)
			return limiter
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		clients.SetDefault(ip, limiter)
		return limiter
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
