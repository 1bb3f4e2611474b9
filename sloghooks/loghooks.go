// Package sloghooks logs cache events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/livecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DiscardEvery uint64
	EvictEvery   uint64
	// LogLoads logs every load start and finish at debug level.
	LogLoads bool
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	discardCtr atomic.Uint64
	evictCtr   atomic.Uint64
}

var _ livecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LoadStarted(cache string, forced bool) {
	if h.l == nil || !h.opts.LogLoads {
		return
	}
	h.l.Debug("livecache.load_started", "cache", cache, "forced", forced)
}

func (h *Hooks) LoadFinished(cache string, took time.Duration, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("livecache.load_failed", "cache", cache, "took", took, "err", err)
		return
	}
	if h.opts.LogLoads {
		h.l.Debug("livecache.load_finished", "cache", cache, "took", took)
	}
}

func (h *Hooks) ResultDiscarded(cache, key, reason string) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("livecache.result_discarded",
		"cache", cache,
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) Evicted(cache, key string) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("livecache.evicted", "cache", cache, "key", h.redact(key))
}

func (h *Hooks) CapacityPinned(cache string, size, capacity int) {
	if h.l == nil {
		return
	}
	h.l.Warn("livecache.capacity_pinned",
		"cache", cache,
		"size", size,
		"capacity", capacity)
}

func (h *Hooks) Obsoleted(cache string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("livecache.obsoleted", "cache", cache, "entries", n)
}

func (h *Hooks) Flushed(cache string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("livecache.flushed", "cache", cache, "entries", n)
}

func (h *Hooks) SubscriberAdded(cache string) {
	if h.l == nil {
		return
	}
	h.l.Debug("livecache.subscriber_added", "cache", cache)
}

func (h *Hooks) SubscriberRemoved(cache string) {
	if h.l == nil {
		return
	}
	h.l.Debug("livecache.subscriber_removed", "cache", cache)
}
