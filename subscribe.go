package livecache

import (
	"context"
	"slices"
	"sync"
)

// Subscription is a live stream of snapshots for one key.
// The first value on C is the state at subscribe time; after that every
// transition is delivered in order. C is closed after Close, after the
// subscribe context ends, or when the cache is closed.
type Subscription[V any] struct {
	c   *cache[V]
	key string
	s   *subscriber[V]

	mu     sync.Mutex
	stop   func() bool
	closed bool
}

// C returns the snapshot channel.
func (s *Subscription[V]) C() <-chan Entry[V] { return s.s.out }

// Close releases the subscription. Safe to call multiple times.
func (s *Subscription[V]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.c.unsubscribe(s.key, s.s)
	s.s.close()
}

func (c *cache[V]) Subscribe(ctx context.Context, args ...any) (*Subscription[V], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key, err := c.keyOf(args)
	if err != nil {
		return nil, err
	}

	s := newSubscriber[V]()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	set := c.subs[key]
	if set == nil {
		set = make(map[*subscriber[V]]struct{})
		c.subs[key] = set
	}
	set[s] = struct{}{}

	e, ok := c.lru.Get(key)
	if ok {
		s.push(e.snapshot())
	} else {
		s.push(uninitialized[V](slices.Clone(args)))
	}

	switch {
	case !ok:
		e = c.insert(key, args)
		c.startLoad(ctx, e, false)
		c.evict()
	case e.status == StatusObsolete && e.pending == nil:
		c.startLoad(ctx, e, false)
	}
	c.hooks.SubscriberAdded(c.name)
	c.mu.Unlock()

	go s.pump()

	sub := &Subscription[V]{c: c, key: key, s: s}
	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, sub.Close)
	sub.mu.Unlock()
	return sub, nil
}

// Observe subscribes to args and calls fn for every snapshot until ctx ends
// or fn returns an error. The subscription is always released on return.
func (c *cache[V]) Observe(ctx context.Context, fn func(Entry[V]) error, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sub, err := c.Subscribe(ctx, args...)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrClosed
			}
			if err := fn(e); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *cache[V]) unsubscribe(key string, s *subscriber[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.subs[key]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(c.subs, key)
	}
	c.hooks.SubscriberRemoved(c.name)
	if !c.closed {
		c.evict()
	}
}

// broadcast queues the current snapshot of e for every subscriber of its key.
// Caller holds c.mu, which gives all subscribers of a key the same order.
func (c *cache[V]) broadcast(e *entry[V]) {
	set := c.subs[e.key]
	if len(set) == 0 {
		return
	}
	snap := e.snapshot()
	for s := range set {
		s.push(snap)
	}
}

// broadcastRemoved tells subscribers of key that its entry is gone.
func (c *cache[V]) broadcastRemoved(key string, args []any) {
	set := c.subs[key]
	if len(set) == 0 {
		return
	}
	snap := uninitialized[V](args)
	for s := range set {
		s.push(snap)
	}
}

// subscriber owns an unbounded queue so producers never block on a slow reader.
type subscriber[V any] struct {
	mu    sync.Mutex
	queue []Entry[V]

	wake      chan struct{}
	out       chan Entry[V]
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber[V any]() *subscriber[V] {
	return &subscriber[V]{
		wake: make(chan struct{}, 1),
		out:  make(chan Entry[V]),
		done: make(chan struct{}),
	}
}

func (s *subscriber[V]) push(e Entry[V]) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[V]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Entry[V]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber[V]) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
