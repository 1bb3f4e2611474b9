package livecache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is the capacity configuration error: capacity must be positive.
	ErrInvalidCapacity = errors.New("livecache: capacity must be greater than 0")
	// ErrNilLoader is returned by New when Options.Loader is nil.
	ErrNilLoader = errors.New("livecache: loader is required")
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("livecache: cache closed")
)

// LoadError wraps whatever the loader returned (or panicked with).
// It is delivered to every caller awaiting the failed load and stored on the entry.
type LoadError struct {
	Args []any
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("livecache: load %v: %v", e.Args, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// KeyNormalizationError means the arguments could not be turned into a key.
// It is a programmer error and is never retried.
type KeyNormalizationError struct {
	Args []any
	Err  error
}

func (e *KeyNormalizationError) Error() string {
	return fmt.Sprintf("livecache: cannot normalize key for %d args: %v", len(e.Args), e.Err)
}

func (e *KeyNormalizationError) Unwrap() error { return e.Err }
