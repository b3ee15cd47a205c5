// Package middleware provides the HTTP middleware guarding the appstats UI.
//
// The UI is read-only, so CORS allows GET and HEAD from any origin without
// credentials. Rate limiting is per client IP with a token bucket; idle
// clients are evicted after a few minutes.
//
// Example Usage:
//
//	ui := router.Group("/appstats")
//	ui.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	ui.Use(middleware.RateLimit(cfg.RateLimit))
package middleware
