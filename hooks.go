package livecache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking:
// the cache calls most of them while holding its lock.
// key is the normalized key (binary); redact before logging it.
type Hooks interface {
	// A load was started. forced is true for Reload/Refresh.
	LoadStarted(cache string, forced bool)
	// A load returned. err is the loader error (nil on success).
	LoadFinished(cache string, took time.Duration, err error)

	// A load outcome or explicit value was not stored.
	// reason ∈ {"superseded", "removed"}
	ResultDiscarded(cache, key, reason string)

	// An unpinned entry was evicted to honor capacity.
	Evicted(cache, key string)
	// Entry count stays above capacity because every entry is pinned.
	CapacityPinned(cache string, size, capacity int)

	Obsoleted(cache string, n int)
	Flushed(cache string, n int)

	SubscriberAdded(cache string)
	SubscriberRemoved(cache string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LoadStarted(string, bool)                  {}
func (NopHooks) LoadFinished(string, time.Duration, error) {}
func (NopHooks) ResultDiscarded(string, string, string)    {}
func (NopHooks) Evicted(string, string)                    {}
func (NopHooks) CapacityPinned(string, int, int)           {}
func (NopHooks) Obsoleted(string, int)                     {}
func (NopHooks) Flushed(string, int)                       {}
func (NopHooks) SubscriberAdded(string)                    {}
func (NopHooks) SubscriberRemoved(string)                  {}
