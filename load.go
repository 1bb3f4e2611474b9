package livecache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// flight is one loader invocation.
type flight[V any] struct {
	ctx       context.Context
	startedAt time.Time
	seq       uint64
	run       func() (any, error)
}

// startLoad begins a new loader invocation for e and makes it the flight that
// later Get callers attach to. Caller holds c.mu.
func (c *cache[V]) startLoad(ctx context.Context, e *entry[V], forced bool) <-chan singleflight.Result {
	if ctx == nil {
		ctx = context.Background()
	}
	c.seq++
	f := &flight[V]{
		ctx:       context.WithoutCancel(ctx),
		startedAt: c.clock.Now(),
		seq:       c.seq,
	}
	f.run = func() (any, error) { return c.run(e, f) }

	e.pending = f
	e.inflight++

	prev := e.status
	switch {
	case e.status == StatusObsolete && !forced:
		// stale value stays visible until the refresh settles
	default:
		e.status = StatusLoading
		e.err = nil
	}
	if e.status != prev {
		c.broadcast(e)
	}
	c.hooks.LoadStarted(c.name, forced)

	// A forgotten key makes DoChan start a new call even if an older
	// flight for the same key is still running.
	c.group.Forget(e.key)
	return c.group.DoChan(e.key, f.run)
}

// join attaches to the pending flight of e. Caller holds c.mu, which keeps
// the flight registered in the group until it settles.
func (c *cache[V]) join(e *entry[V]) <-chan singleflight.Result {
	return c.group.DoChan(e.key, e.pending.run)
}

func (c *cache[V]) wait(ctx context.Context, ch <-chan singleflight.Result) (Entry[V], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case res := <-ch:
		snap, _ := res.Val.(Entry[V])
		return snap, res.Err
	case <-ctx.Done():
		return Entry[V]{}, ctx.Err()
	}
}

func (c *cache[V]) run(e *entry[V], f *flight[V]) (any, error) {
	start := c.clock.Now()
	v, err := c.callLoader(f.ctx, e.args)
	c.hooks.LoadFinished(c.name, c.clock.Since(start), err)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settle(e, f, v, err)
}

func (c *cache[V]) callLoader(ctx context.Context, args []any) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	return c.loader(ctx, args...)
}

// settle stores the outcome of f if it is still the freshest thing known for
// e, and returns what the waiters of f receive. Caller holds c.mu.
func (c *cache[V]) settle(e *entry[V], f *flight[V], v V, err error) (any, error) {
	e.inflight--
	if e.pending == f {
		e.pending = nil
	}

	out := Entry[V]{Status: StatusLoaded, Value: v, UpdatedAt: f.startedAt, Args: e.args}
	var loadErr error
	if err != nil {
		loadErr = &LoadError{Args: e.args, Err: err}
		out = Entry[V]{Status: StatusFailed, Err: loadErr, UpdatedAt: f.startedAt, Args: e.args}
	}

	switch {
	case c.closed || !c.present(e):
		c.discard(e, "removed")
	case !e.newer(f.startedAt, f.seq):
		c.discard(e, "superseded")
		c.unstick(e)
	default:
		if loadErr != nil {
			var zero V
			e.status, e.value, e.hasValue, e.err = StatusFailed, zero, false, loadErr
			c.log.Warn("load failed", Fields{"cache": c.name, "err": err})
		} else {
			e.status, e.value, e.hasValue, e.err = StatusLoaded, v, true, nil
		}
		e.updatedAt, e.seq = f.startedAt, f.seq
		c.lru.Get(e.key) // a write counts as access
		c.broadcast(e)
	}

	if !c.closed {
		c.evict()
	}
	return out, loadErr
}

func (c *cache[V]) discard(e *entry[V], reason string) {
	c.hooks.ResultDiscarded(c.name, e.key, reason)
	c.log.Debug("load result discarded", Fields{"cache": c.name, "reason": reason})
}

// unstick restores a settled state when the last running load was discarded
// while the entry still showed Loading.
func (c *cache[V]) unstick(e *entry[V]) {
	if e.pending != nil || e.status != StatusLoading {
		return
	}
	switch {
	case e.hasValue:
		e.status = StatusLoaded
	case e.err != nil:
		e.status = StatusFailed
	default:
		e.status = StatusUninitialized
	}
	c.broadcast(e)
}
