package livecache

import "time"

// Remove deletes the entry for args. The next Get starts a fresh load and
// live subscribers receive an Uninitialized snapshot.
func (c *cache[V]) Remove(args ...any) error {
	key, err := c.keyOf(args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	e, ok := c.lru.Peek(key)
	if !ok {
		return nil
	}
	c.lru.Remove(key)
	c.broadcastRemoved(key, e.args)
	return nil
}

// FlushAll removes every entry and returns how many were dropped.
// Running loads are not cancelled; their results are discarded when they
// arrive because their entries are gone.
func (c *cache[V]) FlushAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	if c.closed || n == 0 {
		return 0
	}
	for _, k := range c.lru.Keys() {
		e, _ := c.lru.Peek(k)
		c.broadcastRemoved(k, e.args)
	}
	c.lru.Purge()
	c.hooks.Flushed(c.name, n)
	c.log.Debug("flushed", Fields{"cache": c.name, "entries": n})
	return n
}

// ObsoleteRange marks every Loaded entry matching pred as Obsolete and
// returns how many were marked. Values stay readable; the refresh happens on
// the next Get or Subscribe for each key. pred sees every Loaded entry, so
// the scan is linear in the entry count.
func (c *cache[V]) ObsoleteRange(pred Predicate[V]) int {
	if pred == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	n := 0
	for _, k := range c.lru.Keys() {
		e, _ := c.lru.Peek(k)
		if e.status != StatusLoaded || !pred(e.value, e.args) {
			continue
		}
		e.status = StatusObsolete
		c.broadcast(e)
		n++
	}
	if n > 0 {
		c.hooks.Obsoleted(c.name, n)
		c.log.Debug("entries obsoleted", Fields{"cache": c.name, "entries": n})
	}
	return n
}

// SetExplicitValue stores value for args as if a load started at `at` had
// returned it. It is ignored when the entry already holds something newer.
func (c *cache[V]) SetExplicitValue(args []any, value V, at time.Time) error {
	key, err := c.keyOf(args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.seq++
	e, ok := c.lru.Get(key)
	if !ok {
		e = c.insert(key, args)
	}
	if !e.newer(at, c.seq) {
		c.discard(e, "superseded")
		return nil
	}
	e.status, e.value, e.hasValue, e.err = StatusLoaded, value, true, nil
	e.updatedAt, e.seq = at, c.seq
	c.broadcast(e)
	if !ok {
		c.evict()
	}
	return nil
}
