// Package main runs the tracing demo server.
//
// The server answers a few demo routes whose handlers fan out HTTP calls
// to the server itself, records each request with appstats when enabled,
// and serves the recordings under /appstats.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars when given)
//
// Usage:
//
//	# memcache on localhost, tracing on
//	./server --enable-appstats
//
//	# in-process store, debug logs
//	./server --enable-appstats --cache-backend memory --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
