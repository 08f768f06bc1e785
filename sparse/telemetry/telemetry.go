// Package telemetry wraps the host-facing metrics surface (C10): live
// Prometheus counters/histograms for operational dashboards, plus a
// compact msgp-encoded snapshot the host can ship over its own wire
// protocol without reaching into our Prometheus registry directly.
//
// Grounded on the teacher's stats.Tracker usage (`j.ini.StatsT.Add(stats.LruEvictSize,
// bevicted)` in the aistore lru.go reference) — a named-counter-add idiom
// reworked here onto prometheus/client_golang, the pack's actual metrics
// dependency.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the Prometheus collectors for one IndexService. A zero
// Recorder is not usable; construct with New. Alongside the Prometheus
// collectors (the live scrape surface), Recorder mirrors the same counts
// in plain maps so Snapshot can msgp-encode them without walking
// Prometheus's own metric-family internals.
type Recorder struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	reserveRefused prometheus.Counter
	buildDuration  prometheus.Histogram
	queryDuration  prometheus.Histogram

	mirrorMu          sync.Mutex
	hitsMirror        map[string]float64
	missesMirror      map[string]float64
	evictionsMirror   map[string]float64
	refusedMirror     float64
	buildObservations int64
	queryObservations int64
}

// New registers the Recorder's collectors against reg. Passing nil skips
// registration, so callers that don't care about export (most tests) can
// skip wiring a registry.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic",
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache name (forward, posting).",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic",
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache name (forward, posting).",
		}, []string{"cache"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seismic",
			Name:      "evictions_total",
			Help:      "Entries evicted by cache name.",
		}, []string{"cache"}),
		reserveRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seismic",
			Name:      "reserve_refused_total",
			Help:      "Memory budget reservation refusals.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seismic",
			Name:      "build_duration_seconds",
			Help:      "Per-term clustering build duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seismic",
			Name:      "query_duration_seconds",
			Help:      "Per-query ANN search duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		hitsMirror:      make(map[string]float64),
		missesMirror:    make(map[string]float64),
		evictionsMirror: make(map[string]float64),
	}
	if reg != nil {
		reg.MustRegister(r.cacheHits, r.cacheMisses, r.evictions, r.reserveRefused, r.buildDuration, r.queryDuration)
	}
	return r
}

func (r *Recorder) CacheHit(cache string) {
	r.cacheHits.WithLabelValues(cache).Inc()
	r.mirrorMu.Lock()
	r.hitsMirror[cache]++
	r.mirrorMu.Unlock()
}

func (r *Recorder) CacheMiss(cache string) {
	r.cacheMisses.WithLabelValues(cache).Inc()
	r.mirrorMu.Lock()
	r.missesMirror[cache]++
	r.mirrorMu.Unlock()
}

func (r *Recorder) Eviction(cache string) {
	r.evictions.WithLabelValues(cache).Inc()
	r.mirrorMu.Lock()
	r.evictionsMirror[cache]++
	r.mirrorMu.Unlock()
}

func (r *Recorder) ReserveRefused() {
	r.reserveRefused.Inc()
	r.mirrorMu.Lock()
	r.refusedMirror++
	r.mirrorMu.Unlock()
}

func (r *Recorder) ObserveBuild(seconds float64) {
	r.buildDuration.Observe(seconds)
	r.mirrorMu.Lock()
	r.buildObservations++
	r.mirrorMu.Unlock()
}

func (r *Recorder) ObserveQuery(seconds float64) {
	r.queryDuration.Observe(seconds)
	r.mirrorMu.Lock()
	r.queryObservations++
	r.mirrorMu.Unlock()
}

// BuildObservations and QueryObservations report how many times
// ObserveBuild/ObserveQuery have been called, mainly so tests can assert
// a caller actually timed itself without reaching into Prometheus
// internals.
func (r *Recorder) BuildObservations() int64 {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	return r.buildObservations
}

func (r *Recorder) QueryObservations() int64 {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	return r.queryObservations
}
