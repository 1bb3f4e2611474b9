package livecache

import "time"

// Status is the lifecycle state of a cache entry.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
	StatusObsolete
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	case StatusObsolete:
		return "obsolete"
	default:
		return "unknown"
	}
}

// Entry is an immutable snapshot of one key's state.
//
// Value is meaningful when HasValue reports true. While a forced reload is
// running the snapshot is Loading and still carries the last good Value.
type Entry[V any] struct {
	Status    Status
	Value     V
	Err       error
	UpdatedAt time.Time
	Args      []any
}

// HasValue reports whether the entry holds a displayable value.
func (e Entry[V]) HasValue() bool {
	return e.Status == StatusLoaded || e.Status == StatusObsolete
}

// entry is the mutable record kept in the store. Guarded by cache.mu.
type entry[V any] struct {
	key  string
	args []any

	status    Status
	value     V
	hasValue  bool // a value was stored and not dropped by a failure
	err       error
	updatedAt time.Time
	seq       uint64 // tie breaker for equal updatedAt

	pending  *flight[V] // newest load that Get callers attach to
	inflight int        // loads still running for this entry
}

func (e *entry[V]) snapshot() Entry[V] {
	return Entry[V]{
		Status:    e.status,
		Value:     e.value,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
		Args:      e.args,
	}
}

// newer reports whether a write stamped (at, seq) may replace the current value.
func (e *entry[V]) newer(at time.Time, seq uint64) bool {
	if at.After(e.updatedAt) {
		return true
	}
	return at.Equal(e.updatedAt) && seq > e.seq
}

func uninitialized[V any](args []any) Entry[V] {
	return Entry[V]{Status: StatusUninitialized, Args: args}
}
