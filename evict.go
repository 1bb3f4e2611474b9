package livecache

// evict removes least recently used entries until the store fits capacity.
// Entries with live subscribers or running loads are pinned and skipped, so
// the store may stay over capacity until they are released.
// Caller holds c.mu.
//
// Finding a victim walks the LRU order, which is linear in the entry count.
// Caches here hold tens to hundreds of entries, so no pinned-entry index is kept.
func (c *cache[V]) evict() {
	for c.lru.Len() > c.capacity {
		victim, ok := c.oldestEvictable()
		if !ok {
			c.hooks.CapacityPinned(c.name, c.lru.Len(), c.capacity)
			c.log.Debug("over capacity, all entries pinned", Fields{
				"cache": c.name, "size": c.lru.Len(), "capacity": c.capacity,
			})
			return
		}
		c.lru.Remove(victim)
		c.hooks.Evicted(c.name, victim)
		c.log.Debug("evicted entry", Fields{"cache": c.name, "size": c.lru.Len()})
	}
}

func (c *cache[V]) oldestEvictable() (string, bool) {
	for _, k := range c.lru.Keys() { // oldest first
		e, _ := c.lru.Peek(k)
		if e.inflight == 0 && len(c.subs[k]) == 0 {
			return k, true
		}
	}
	return "", false
}
