// Package upload implements the delivery-side write sinks (C8):
// an S3 multipart/PutObject sink and an SFTP sink, both behind a common
// Sink contract so the pipeline (C9) can drive either without knowing
// which backend it is talking to.
package upload

import "context"

// Sink is a backpressure-aware, write-only destination for streamed
// archive bytes. Exactly one of Complete or Abort must be called
// before the sink is discarded; calling Write after either is an error.
type Sink interface {
	// Write forwards len(p) bytes in source order. It may block while
	// internal buffers drain, propagating backpressure to the caller.
	Write(ctx context.Context, p []byte) (int, error)

	// Complete finalizes the destination object (completes a multipart
	// upload, closes a remote file) after all bytes have been written.
	Complete(ctx context.Context) error

	// Abort discards any partial upload/file. Safe to call after a
	// failed Write; implementations make a best effort and never panic.
	Abort(ctx context.Context) error

	// BytesWritten returns a monotonic count of bytes accepted so far,
	// safe to poll from another goroutine for progress reporting.
	BytesWritten() uint64
}
