package livecache

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/livecache/keys"
)

type cache[V any] struct {
	name     string
	capacity int
	loader   LoaderFunc[V]
	keys     keys.Normalizer
	log      Logger
	hooks    Hooks
	clock    clockwork.Clock

	group singleflight.Group

	mu     sync.Mutex
	lru    *simplelru.LRU[string, *entry[V]] // access order only; capacity is enforced by evict
	subs   map[string]map[*subscriber[V]]struct{}
	seq    uint64
	closed bool
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCapacity, opts.Capacity)
	}
	if opts.Loader == nil {
		return nil, ErrNilLoader
	}

	lru, err := simplelru.NewLRU[string, *entry[V]](math.MaxInt, nil)
	if err != nil {
		return nil, err
	}

	c := &cache[V]{
		capacity: opts.Capacity,
		loader:   opts.Loader,
		lru:      lru,
		subs:     make(map[string]map[*subscriber[V]]struct{}),
	}

	// defaults
	c.name = coalesce(opts.Name, defaultName)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.clock = coalesce[clockwork.Clock](opts.Clock, clockwork.NewRealClock())
	if opts.Keys != nil {
		c.keys = opts.Keys
	} else {
		n, err := keys.NewCBOR()
		if err != nil {
			return nil, err
		}
		c.keys = n
	}
	return c, nil
}

func (c *cache[V]) Get(ctx context.Context, args ...any) (V, error) {
	e, err := c.GetEntry(ctx, args...)
	return e.Value, err
}

func (c *cache[V]) GetEntry(ctx context.Context, args ...any) (Entry[V], error) {
	key, err := c.keyOf(args)
	if err != nil {
		return Entry[V]{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry[V]{}, ErrClosed
	}

	e, ok := c.lru.Get(key)
	if ok {
		switch e.status {
		case StatusLoaded:
			snap := e.snapshot()
			c.mu.Unlock()
			return snap, nil
		case StatusObsolete:
			// serve stale, refresh behind the caller's back
			if e.pending == nil {
				c.startLoad(ctx, e, false)
			}
			snap := e.snapshot()
			c.mu.Unlock()
			return snap, nil
		case StatusLoading:
			if e.pending != nil {
				ch := c.join(e)
				c.mu.Unlock()
				return c.wait(ctx, ch)
			}
		}
	} else {
		e = c.insert(key, args)
	}

	ch := c.startLoad(ctx, e, false)
	if !ok {
		c.evict()
	}
	c.mu.Unlock()
	return c.wait(ctx, ch)
}

func (c *cache[V]) Peek(args ...any) (Entry[V], bool, error) {
	key, err := c.keyOf(args)
	if err != nil {
		return Entry[V]{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(key)
	if !ok {
		return uninitialized[V](slices.Clone(args)), false, nil
	}
	return e.snapshot(), true, nil
}

func (c *cache[V]) Reload(ctx context.Context, args ...any) (V, error) {
	var zero V
	key, err := c.keyOf(args)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, ErrClosed
	}
	ch := c.forceLoad(ctx, key, args)
	c.mu.Unlock()

	snap, err := c.wait(ctx, ch)
	return snap.Value, err
}

func (c *cache[V]) Refresh(args ...any) error {
	key, err := c.keyOf(args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.forceLoad(context.Background(), key, args)
	return nil
}

func (c *cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close ends every live subscription and drops all entries. Loads still
// running finish in the background and their results are discarded.
func (c *cache[V]) Close(context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]map[*subscriber[V]]struct{})
	c.lru.Purge()
	c.mu.Unlock()

	for _, set := range subs {
		for s := range set {
			s.close()
			c.hooks.SubscriberRemoved(c.name)
		}
	}
	return nil
}

func (c *cache[V]) keyOf(args []any) (string, error) {
	k, err := c.keys.Normalize(args)
	if err != nil {
		return "", &KeyNormalizationError{Args: args, Err: err}
	}
	return k, nil
}

// insert adds a fresh entry as most recently used. Caller holds c.mu and
// runs evict once the entry is pinned by its load.
func (c *cache[V]) insert(key string, args []any) *entry[V] {
	e := &entry[V]{key: key, args: slices.Clone(args)}
	c.lru.Add(key, e)
	return e
}

// forceLoad starts a load for key whatever the entry state. Caller holds c.mu.
func (c *cache[V]) forceLoad(ctx context.Context, key string, args []any) <-chan singleflight.Result {
	e, ok := c.lru.Get(key)
	if !ok {
		e = c.insert(key, args)
	}
	ch := c.startLoad(ctx, e, true)
	if !ok {
		c.evict()
	}
	return ch
}

// present reports whether e is still the stored entry for its key.
func (c *cache[V]) present(e *entry[V]) bool {
	cur, ok := c.lru.Peek(e.key)
	return ok && cur == e
}
