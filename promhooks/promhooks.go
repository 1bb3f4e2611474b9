// Package promhooks exports cache events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/livecache"
)

// Hooks records metrics labelled by cache name. All collectors are
// registered on the registerer passed to New.
type Hooks struct {
	loadsStarted  *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	loadFailures  *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	pinned        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
}

var _ livecache.Hooks = (*Hooks)(nil)

func New(reg prometheus.Registerer, namespace string) *Hooks {
	return &Hooks{
		loadsStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_loads_started_total",
			Help:      "Loader invocations started, by whether they were forced.",
		}, []string{"cache", "forced"}),
		loadDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "livecache_load_duration_seconds",
			Help:      "Time spent in the loader.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"cache"}),
		loadFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_load_failures_total",
			Help:      "Loader invocations that returned an error.",
		}, []string{"cache"}),
		discarded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_results_discarded_total",
			Help:      "Load results not stored because they were stale or their entry was gone.",
		}, []string{"cache", "reason"}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_evictions_total",
			Help:      "Entries evicted to honour capacity.",
		}, []string{"cache"}),
		pinned: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_capacity_pinned_total",
			Help:      "Times the cache stayed over capacity because every entry was pinned.",
		}, []string{"cache"}),
		invalidations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livecache_invalidated_entries_total",
			Help:      "Entries marked obsolete or flushed.",
		}, []string{"cache", "kind"}),
		subscribers: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "livecache_subscribers",
			Help:      "Live subscriptions.",
		}, []string{"cache"}),
	}
}

func (h *Hooks) LoadStarted(cache string, forced bool) {
	f := "false"
	if forced {
		f = "true"
	}
	h.loadsStarted.WithLabelValues(cache, f).Inc()
}

func (h *Hooks) LoadFinished(cache string, took time.Duration, err error) {
	h.loadDuration.WithLabelValues(cache).Observe(took.Seconds())
	if err != nil {
		h.loadFailures.WithLabelValues(cache).Inc()
	}
}

func (h *Hooks) ResultDiscarded(cache, _, reason string) {
	h.discarded.WithLabelValues(cache, reason).Inc()
}

func (h *Hooks) Evicted(cache, _ string) { h.evictions.WithLabelValues(cache).Inc() }

func (h *Hooks) CapacityPinned(cache string, _, _ int) { h.pinned.WithLabelValues(cache).Inc() }

func (h *Hooks) Obsoleted(cache string, n int) {
	h.invalidations.WithLabelValues(cache, "obsolete").Add(float64(n))
}

func (h *Hooks) Flushed(cache string, n int) {
	h.invalidations.WithLabelValues(cache, "flush").Add(float64(n))
}

func (h *Hooks) SubscriberAdded(cache string)   { h.subscribers.WithLabelValues(cache).Inc() }
func (h *Hooks) SubscriberRemoved(cache string) { h.subscribers.WithLabelValues(cache).Dec() }
