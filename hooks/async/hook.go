// Package asynchook moves hook work off the cache's lock.
//
// The cache calls hooks while holding its mutex, so an inner Hooks that
// touches the network or a slow sink should be wrapped:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DiscardEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker, queue of 1000 events
//	defer hooks.Close()
//
//	c, _ := livecache.New(livecache.Options[Device]{
//	    Capacity: 100,
//	    Loader:   api.Device,
//	    Hooks:    hooks,
//	})
//
// Events are dropped, not queued, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/livecache"
)

type Hooks struct {
	inner   livecache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ livecache.Hooks = (*Hooks)(nil)

func New(inner livecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events arriving after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the dispatcher was closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) LoadStarted(c string, forced bool) {
	h.try(func() { h.inner.LoadStarted(c, forced) })
}
func (h *Hooks) LoadFinished(c string, took time.Duration, err error) {
	h.try(func() { h.inner.LoadFinished(c, took, err) })
}
func (h *Hooks) ResultDiscarded(c, key, reason string) {
	h.try(func() { h.inner.ResultDiscarded(c, key, reason) })
}
func (h *Hooks) Evicted(c, key string) { h.try(func() { h.inner.Evicted(c, key) }) }
func (h *Hooks) CapacityPinned(c string, size, capacity int) {
	h.try(func() { h.inner.CapacityPinned(c, size, capacity) })
}
func (h *Hooks) Obsoleted(c string, n int)  { h.try(func() { h.inner.Obsoleted(c, n) }) }
func (h *Hooks) Flushed(c string, n int)    { h.try(func() { h.inner.Flushed(c, n) }) }
func (h *Hooks) SubscriberAdded(c string)   { h.try(func() { h.inner.SubscriberAdded(c) }) }
func (h *Hooks) SubscriberRemoved(c string) { h.try(func() { h.inner.SubscriberRemoved(c) }) }
