package console

import "errors"

var (
	// ErrTimeout is returned when no byte arrives within the per-byte bound
	ErrTimeout = errors.New("console timeout")

	// ErrClosed is returned when the underlying stream is gone
	ErrClosed = errors.New("console stream closed")
)
