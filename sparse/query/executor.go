// Package query implements the ANN query executor (C8, spec.md §4.8):
// per-coordinate clustered-posting traversal with sketch-based pruning,
// feeding a capped min-heap of (score, docId) candidates.
//
// Grounded on amirEBD-bluge's TopNCollector (a size-and-skip-capped
// result store with a "lowest hit currently outside the results" early
// reject before touching the heap), adapted from its generic sort-order
// shape down to the sketch-prune-then-score contract spec.md §4.8 names.
package query

import (
	"context"
	"sort"
	"strconv"

	"github.com/sparseann/seismic/cmn/debug"
	"github.com/sparseann/seismic/cmn/mono"
	"github.com/sparseann/seismic/cmn/nlog"
	"github.com/sparseann/seismic/sparse/forward"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/telemetry"
	"github.com/sparseann/seismic/sparse/vector"
)

// Params are the per-query knobs from spec.md §4.8's "Inputs".
type Params struct {
	K          uint32
	QueryCut   uint32
	HeapFactor float32
	PreFilter  *BitSet // nil means no filter
}

// Hit is one ranked result: docId plus its float score.
type Hit struct {
	DocID uint32
	Score float32
}

// Result is the outcome of a Search call.
type Result struct {
	Hits []Hit
	// Degraded is true when the field has no clustered terms at all
	// (e.g. every term in it was at or below approximate_threshold at
	// build time): spec.md §4.8's "Degradation path" requires the host
	// fall back to its own exact scorer in that case, since C8 has
	// nothing to traverse.
	Degraded bool
}

// Executor runs top-k ANN search for one (segment, field) pair.
type Executor struct {
	fwd      *forward.Index
	store    *posting.Store
	maxDoc   uint32
	scaleQ   float32
	scaleDoc float32
	rec      *telemetry.Recorder
}

// New creates an Executor over fwd (C3) and store (C4) for a segment of
// maxDoc documents. scaleQ/scaleDoc are the quantization scales used to
// recover a float score from the accumulated u32 dot product (spec.md
// §4.8 "Numeric semantics").
func New(fwd *forward.Index, store *posting.Store, maxDoc uint32, scaleQ, scaleDoc float32) *Executor {
	return &Executor{fwd: fwd, store: store, maxDoc: maxDoc, scaleQ: scaleQ, scaleDoc: scaleDoc}
}

// WithRecorder attaches a telemetry.Recorder so Search reports its
// wall-clock duration. Optional: a nil or never-called WithRecorder
// leaves search unobserved.
func (e *Executor) WithRecorder(rec *telemetry.Recorder) *Executor {
	e.rec = rec
	return e
}

// Search runs the algorithm in spec.md §4.8. Cancellation is checked at
// every cluster boundary via ctx, matching the state machine's
// "Cancellation is a host-driven flag checked at every cluster
// boundary."
func (e *Executor) Search(ctx context.Context, q vector.Vector, p Params) Result {
	debug.Assert(p.K > 0, "query.Search: k must be > 0")

	start := mono.NanoTime()
	if e.rec != nil {
		defer func() { e.rec.ObserveQuery(mono.Since(start).Seconds()) }()
	}

	if len(e.store.Terms()) == 0 {
		return Result{Degraded: true}
	}

	coords := selectQueryCoords(q, p.QueryCut)
	visited := NewBitSet(e.maxDoc)
	h := newCapHeap(int(p.K))

	for _, coord := range coords {
		term := strconv.FormatUint(uint64(coord.Idx), 10)
		clusters, ok := e.store.Read([]byte(term))
		if !ok {
			continue
		}

		for _, c := range clusters {
			select {
			case <-ctx.Done():
				return Result{Hits: drainToHits(h, e.scaleQ, e.scaleDoc)}
			default:
			}

			upper := float32(q.Dot(c.Summary)) * p.HeapFactor
			if h.Full() && upper < float32(h.MinScore()) && !c.ShouldNotSkip {
				continue // pruned: the sketch bound can't beat the current floor
			}

			for _, m := range c.Members {
				if p.PreFilter != nil && !p.PreFilter.Test(m.DocID) {
					continue
				}
				if visited.Test(m.DocID) {
					continue
				}
				visited.Set(m.DocID)

				v, ok := e.fwd.Read(m.DocID)
				if !ok {
					nlog.Infof("query: doc %d missing from forward index, skipping", m.DocID)
					continue
				}
				score := q.Dot(v)
				h.Offer(m.DocID, score)
			}
		}
	}

	return Result{Hits: drainToHits(h, e.scaleQ, e.scaleDoc)}
}

func drainToHits(h *capHeap, scaleQ, scaleDoc float32) []Hit {
	drained := h.Drain()
	hits := make([]Hit, len(drained))
	for i, d := range drained {
		hits[i] = Hit{DocID: d.DocID, Score: float32(d.Score) * scaleQ * scaleDoc}
	}
	return hits
}

// selectQueryCoords sorts q's coordinates by weight descending and keeps
// the top queryCut (spec.md §4.8 step 1).
func selectQueryCoords(q vector.Vector, queryCut uint32) []vector.Item {
	items := append([]vector.Item(nil), q.Items()...)
	sort.Slice(items, func(i, j int) bool { return items[i].Weight > items[j].Weight })
	if queryCut > 0 && uint32(len(items)) > queryCut {
		items = items[:queryCut]
	}
	return items
}
