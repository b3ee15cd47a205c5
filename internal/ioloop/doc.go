// Package ioloop provides a single-goroutine callback loop.
//
// Callbacks are queued from any goroutine and run one at a time, in the
// order they were added, on the goroutine that called Run. Code that only
// touches shared state from loop callbacks needs no further locking.
package ioloop
