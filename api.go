package livecache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/livecache/keys"
)

// LoaderFunc fetches the value for an argument tuple. It receives the exact
// arguments passed to the call that started the load. The context is detached
// from the caller's cancellation: a load always runs to completion.
type LoaderFunc[V any] func(ctx context.Context, args ...any) (V, error)

// Predicate selects entries for ObsoleteRange. It runs while the cache is
// locked and must not call back into the cache.
type Predicate[V any] func(value V, args []any) bool

// Cache is a reactive, capacity-bounded cache in front of a loader.
// V is the value type produced by the loader.
type Cache[V any] interface {
	// Reads
	Get(ctx context.Context, args ...any) (V, error)
	GetEntry(ctx context.Context, args ...any) (Entry[V], error)
	Peek(args ...any) (Entry[V], bool, error)
	Reload(ctx context.Context, args ...any) (V, error)
	Refresh(args ...any) error

	// Live views
	Subscribe(ctx context.Context, args ...any) (*Subscription[V], error)
	Observe(ctx context.Context, fn func(Entry[V]) error, args ...any) error

	// Invalidation
	Remove(args ...any) error
	FlushAll() int
	ObsoleteRange(pred Predicate[V]) int
	SetExplicitValue(args []any, value V, at time.Time) error

	Len() int
	Close(context.Context) error
}

// Options configure a Cache. Capacity and Loader are required.
type Options[V any] struct {
	// Required
	Capacity int // max entries; entries pinned by subscribers or loads may exceed it transiently
	Loader   LoaderFunc[V]

	Name   string          // used in logs and hooks; "" => "livecache"
	Keys   keys.Normalizer // nil => keys.CBOR
	Logger Logger          // nil => NopLogger
	Hooks  Hooks           // nil => NopHooks
	Clock  clockwork.Clock // nil => real clock
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
