// Package config provides 12-factor configuration for the tracing demo server.
//
// Configuration is loaded from environment variables with defaults; the
// cobra flags in cmd/server override individual fields afterwards.
//
// Configuration Sections:
//   - Server: listener address and shutdown timeout
//   - Appstats: the global tracing switch (off by default), the option map
//     forwarded to the appstats library, and the UI mount prefix
//   - Cache: which key-value store holds recorded traces
//   - Client: timeouts and retries of the outbound HTTP clients
//   - Logging: log level and output format
//   - RateLimit: limits on the appstats UI
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - APPSTATS_ENABLED, APPSTATS_OPTIONS (KEY:VALUE,...), APPSTATS_OPTIONS_FILE, APPSTATS_MOUNT
//   - CACHE_BACKEND, MEMCACHE_SERVERS, REDIS_ADDR, REDIS_DB, CACHE_TIMEOUT
//   - HTTP_CLIENT_TIMEOUT, HTTP_CLIENT_RETRIES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
