// Package budget implements the process-wide memory circuit breaker
// (spec.md §4.2): a single signed byte counter guarded by a
// compare-and-swap loop, with a Prometheus gauge pair for observability.
package budget

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sparseann/seismic/cmn/atomic"
	"github.com/sparseann/seismic/cmn/xerrors"
)

// Breaker is the memory-budget circuit breaker. The zero value is not
// usable; construct with New.
type Breaker struct {
	used  atomic.Int64
	limit atomic.Int64

	usedGauge  prometheus.Gauge
	limitGauge prometheus.Gauge
	refusals   prometheus.Counter
}

// New creates a Breaker with the given byte limit. A limit of 0 disables
// caching entirely: every Reserve call is refused (spec.md §4.2).
func New(limitBytes int64, reg prometheus.Registerer, label string) *Breaker {
	b := &Breaker{
		usedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "seismic_budget_used_bytes",
			Help:        "Bytes currently reserved against the circuit breaker.",
			ConstLabels: prometheus.Labels{"budget": label},
		}),
		limitGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "seismic_budget_limit_bytes",
			Help:        "Configured byte limit for the circuit breaker.",
			ConstLabels: prometheus.Labels{"budget": label},
		}),
		refusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "seismic_budget_reserve_refused_total",
			Help:        "Count of Reserve calls refused by the circuit breaker.",
			ConstLabels: prometheus.Labels{"budget": label},
		}),
	}
	b.limit.Store(limitBytes)
	if reg != nil {
		reg.MustRegister(b.usedGauge, b.limitGauge, b.refusals)
	}
	b.limitGauge.Set(float64(limitBytes))
	return b
}

// SetLimit atomically replaces the byte limit (spec.md §4.2 "set_limit").
// overhead is added on top of bytes for future header accounting; callers
// that don't track a separate overhead pass 0.
func (b *Breaker) SetLimit(limitBytes, overhead int64) {
	b.limit.Store(limitBytes + overhead)
	b.limitGauge.Set(float64(limitBytes + overhead))
}

// Reserve attempts to atomically add n to the used-bytes counter,
// refusing (without changing the counter) if doing so would exceed the
// limit. label is used only for error messages/metrics.
func (b *Breaker) Reserve(n int64, label string) error {
	for {
		limit := b.limit.Load()
		cur := b.used.Load()
		if limit <= 0 || cur+n > limit {
			b.refusals.Inc()
			return xerrors.New(xerrors.KindMemoryBudget, "budget.Reserve",
				"would exceed limit reserving "+label)
		}
		if b.used.CAS(cur, cur+n) {
			b.usedGauge.Set(float64(cur + n))
			return nil
		}
	}
}

// ReserveWithoutCheck unconditionally adds n (spec.md §4.2:
// "reserve_without_check" — used for header allocations whose failure
// would cascade).
func (b *Breaker) ReserveWithoutCheck(n int64) {
	v := b.used.Add(n)
	b.usedGauge.Set(float64(v))
}

// Release unconditionally subtracts n from the used-bytes counter.
func (b *Breaker) Release(n int64) {
	v := b.used.Add(-n)
	b.usedGauge.Set(float64(v))
}

// Used returns the current reserved-byte count.
func (b *Breaker) Used() int64 { return b.used.Load() }

// Limit returns the current byte limit.
func (b *Breaker) Limit() int64 { return b.limit.Load() }

// Disabled reports whether the breaker refuses all reservations
// (limit == 0, spec.md §4.2).
func (b *Breaker) Disabled() bool { return b.limit.Load() <= 0 }
