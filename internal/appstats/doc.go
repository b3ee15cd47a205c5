/*
Package appstats records per-request RPC timing and keeps the results in a
memcache-style store for the operator UI.

A Library is configured once with Options (the appstats option names
RECORD_FRACTION, KEY_PREFIX, ... are accepted verbatim by ParseOptions) and a
cache.Client. For each request:

	rec := lib.StartRecording(appstats.NewEnviron(r)) // nil when not sampled
	rec.PreCall("http", "GET", url, nil)
	// ... outbound call ...
	rec.PostCall("http", "GET", url, nil)
	record, err := lib.EndRecording(ctx, rec, http.StatusOK)

Records are written twice: a small summary under key+"__part" for the
listing page and the zlib-compressed full record under key+"__full". Keys
are derived from the request start time modulo KEY_MODULUS, so the store
holds a bounded ring of recent requests and the listing can fetch every
slot in one multi-get.

The UI (NewUI) is a plain http.Handler meant to be mounted under a prefix.
*/
package appstats
