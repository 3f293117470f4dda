package engine

import "errors"

var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("engine: closed")

	// ErrEmptyKey is returned by Put, Delete and BatchPut when given a
	// zero-length key.
	// Keys are defined by the spec as a non-empty sequence of characters.
	ErrEmptyKey = errors.New("engine: key must not be empty")

	// ErrBatchLengthMismatch is returned by BatchPut when the keys and
	// values slices differ in length. Reported before any write occurs.
	ErrBatchLengthMismatch = errors.New("engine: batch_put keys and values must have equal length")

	// ErrInvalidRange is returned by GetRange when start sorts after end.
	ErrInvalidRange = errors.New("engine: range start must not be greater than end")
)
