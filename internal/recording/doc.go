/*
Package recording attaches request tracing to a gin server and its
outbound HTTP clients.

# Overview

A Recording owns one ambient trace slot. The request middleware starts a
trace for each request, binds it to the request context and to the slot,
and ends it with the final status code. The HTTP clients fire a pre-call
hook before every request and the matching post-call hook when the call
completes.

With an ioloop, callbacks for many requests interleave on one goroutine.
Continuations scheduled through Wrap, WrapCallback, AddCallback or the
async client restore the trace of the request that scheduled them before
they run, so the slot always names the request whose callback is
executing.

# Usage

	lib := appstats.New(opts, cacheClient, logger)
	rec := recording.New(cfg.Appstats.Enabled, recording.NewAppstatsBackend(lib),
		recording.WithLoop(loop),
		recording.WithLogger(logger),
	)

	router.Use(rec.Middleware())
	router.GET("/echo", rec.Fallback(echoHandler))

	client := recording.NewAsyncHTTPClient(rec, loop, cfg.Client, logger)
	client.Fetch(ctx, "http://backend/items", func(resp *recording.Response) {
		// runs on the loop with this request's trace restored
	})

When tracing is disabled every hook is a no-op and requests run exactly as
they would without the middleware.
*/
package recording
