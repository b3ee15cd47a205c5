/*
Package monitoring provides Prometheus metrics for the tracing server.

# Overview

Metrics cover inbound HTTP requests, intercepted outbound calls, and the
lifecycle of recordings (started, skipped, stored, failed). The open-calls
gauge stays raised for calls whose completion never arrives.

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "http", "GET")
	// ... perform call ...
	timer.Stop("200")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
*/
package monitoring
