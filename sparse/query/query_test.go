package query

import (
	"context"
	"strconv"
	"testing"

	"github.com/sparseann/seismic/sparse/budget"
	"github.com/sparseann/seismic/sparse/forward"
	"github.com/sparseann/seismic/sparse/lru"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/telemetry"
	"github.com/sparseann/seismic/sparse/vector"
)

func term(idx uint32) []byte { return []byte(strconv.FormatUint(uint64(idx), 10)) }

func vec(pairs ...vector.Item) vector.Vector { return vector.FromSorted(pairs) }

type fixture struct {
	fwd   *forward.Index
	store *posting.Store
}

func newFixture(t *testing.T, maxDoc uint32) *fixture {
	t.Helper()
	fb := budget.New(1<<24, nil, "test")
	var fwd *forward.Index
	docLRU := lru.New[lru.DocumentKey](func(k lru.DocumentKey) int64 { return fwd.Erase(k.DocID) })
	fwd = forward.New(lru.CacheKey{SegmentID: "seg", Field: "f"}, maxDoc, fb, docLRU)

	sb := budget.New(1<<24, nil, "test")
	var store *posting.Store
	termLRU := lru.New[lru.TermKey](func(k lru.TermKey) int64 { return store.EraseByTermKey(k) })
	store = posting.New(lru.CacheKey{SegmentID: "seg", Field: "f"}, sb, termLRU)

	return &fixture{fwd: fwd, store: store}
}

func TestSearchRanksByDotProduct(t *testing.T) {
	f := newFixture(t, 10)
	// doc 1: coordinate 1000 weight 50; doc 2: coordinate 1000 weight 200
	f.fwd.Insert(1, vec(vector.Item{Idx: 1000, Weight: 50}))
	f.fwd.Insert(2, vec(vector.Item{Idx: 1000, Weight: 200}))

	f.store.Insert(term(1000), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 1000, Weight: 200}),
		Members:       []posting.Member{{DocID: 2, Weight: 200}, {DocID: 1, Weight: 50}},
		ShouldNotSkip: true,
	}})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 1000, Weight: 10})
	res := exec.Search(context.Background(), q, Params{K: 10, QueryCut: 1, HeapFactor: 1.0})

	if res.Degraded {
		t.Fatalf("expected non-degraded result")
	}
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(res.Hits), res.Hits)
	}
	if res.Hits[0].DocID != 2 || res.Hits[1].DocID != 1 {
		t.Fatalf("expected doc 2 (higher dot product) ranked first, got %+v", res.Hits)
	}
}

func TestSearchTieBreakSmallerDocWins(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(5, vec(vector.Item{Idx: 7, Weight: 100}))
	f.fwd.Insert(3, vec(vector.Item{Idx: 7, Weight: 100}))

	f.store.Insert(term(7), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 7, Weight: 100}),
		Members:       []posting.Member{{DocID: 5, Weight: 100}, {DocID: 3, Weight: 100}},
		ShouldNotSkip: true,
	}})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 7, Weight: 10})
	res := exec.Search(context.Background(), q, Params{K: 10, QueryCut: 1, HeapFactor: 1.0})

	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", res.Hits)
	}
	if res.Hits[0].Score != res.Hits[1].Score {
		t.Fatalf("expected a genuine tie, got scores %v and %v", res.Hits[0].Score, res.Hits[1].Score)
	}
	if res.Hits[0].DocID != 3 {
		t.Fatalf("expected smaller docId (3) to rank first on a tie, got %+v", res.Hits)
	}
}

func TestSearchPreFilterExcludesDocs(t *testing.T) {
	f := newFixture(t, 10)
	for doc := uint32(1); doc <= 4; doc++ {
		f.fwd.Insert(doc, vec(vector.Item{Idx: 1, Weight: uint8(50 + 10*doc)}))
	}
	f.store.Insert(term(1), posting.Clusters{{
		Summary: vec(vector.Item{Idx: 1, Weight: 90}),
		Members: []posting.Member{
			{DocID: 4, Weight: 90}, {DocID: 3, Weight: 80}, {DocID: 2, Weight: 70}, {DocID: 1, Weight: 60},
		},
		ShouldNotSkip: true,
	}})

	odd := NewBitSet(10)
	odd.Set(1)
	odd.Set(3)

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 1, Weight: 10})
	res := exec.Search(context.Background(), q, Params{K: 10, QueryCut: 1, HeapFactor: 1.0, PreFilter: odd})

	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits admitted by the pre-filter, got %+v", res.Hits)
	}
	for _, h := range res.Hits {
		if h.DocID != 1 && h.DocID != 3 {
			t.Fatalf("unexpected doc %d admitted despite pre-filter", h.DocID)
		}
	}
}

// Both pruning tests share the same setup: cluster A fills the k=1 heap
// with docX's score (100*100=10000). Cluster B's stored Summary
// (weight=1 at coordinate 9) deliberately understates docY's true
// forward-index weight (255 at coordinate 9) — standing in for a
// coordinate a build-time prune pass truncated out of the summary,
// which is exactly the scenario should_not_skip exists to guard
// against (spec.md §8 invariant 5 only holds "pre-prune"). Cluster B's
// computed upper bound (100) is far below the heap floor (10000), so
// whether it gets a chance to actually be scored depends entirely on
// ShouldNotSkip.
func TestSearchPrunesClusterBelowHeapFloor(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(1, vec(vector.Item{Idx: 9, Weight: 100}))
	f.fwd.Insert(2, vec(vector.Item{Idx: 9, Weight: 255}))

	f.store.Insert(term(9), posting.Clusters{
		{
			Summary:       vec(vector.Item{Idx: 9, Weight: 100}),
			Members:       []posting.Member{{DocID: 1, Weight: 100}},
			ShouldNotSkip: true,
		},
		{
			Summary:       vec(vector.Item{Idx: 9, Weight: 1}),
			Members:       []posting.Member{{DocID: 2, Weight: 1}},
			ShouldNotSkip: false,
		},
	})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 9, Weight: 100})
	res := exec.Search(context.Background(), q, Params{K: 1, QueryCut: 1, HeapFactor: 1.0})

	if len(res.Hits) != 1 || res.Hits[0].DocID != 1 {
		t.Fatalf("expected doc 2's cluster pruned, leaving doc 1, got %+v", res.Hits)
	}
}

func TestSearchShouldNotSkipForcesEvaluation(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(1, vec(vector.Item{Idx: 9, Weight: 100}))
	f.fwd.Insert(2, vec(vector.Item{Idx: 9, Weight: 255}))

	f.store.Insert(term(9), posting.Clusters{
		{
			Summary:       vec(vector.Item{Idx: 9, Weight: 100}),
			Members:       []posting.Member{{DocID: 1, Weight: 100}},
			ShouldNotSkip: true,
		},
		{
			// same understated summary as the pruning test, but
			// ShouldNotSkip=true: must be evaluated regardless of the
			// sketch bound, and doc 2's true score (25500) beats doc 1's
			// (10000), so it displaces doc 1 in the capped heap.
			Summary:       vec(vector.Item{Idx: 9, Weight: 1}),
			Members:       []posting.Member{{DocID: 2, Weight: 1}},
			ShouldNotSkip: true,
		},
	})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 9, Weight: 100})
	res := exec.Search(context.Background(), q, Params{K: 1, QueryCut: 1, HeapFactor: 1.0})

	if len(res.Hits) != 1 || res.Hits[0].DocID != 2 {
		t.Fatalf("expected doc 2 to win once should_not_skip forces its evaluation, got %+v", res.Hits)
	}
}

func TestSearchDegradedWhenFieldHasNoClusters(t *testing.T) {
	f := newFixture(t, 10)
	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	res := exec.Search(context.Background(), vec(vector.Item{Idx: 1, Weight: 1}), Params{K: 10, QueryCut: 1, HeapFactor: 1.0})
	if !res.Degraded {
		t.Fatalf("expected degraded result when no terms are clustered")
	}
}

func TestSearchQueryCutLimitsCoordinates(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(1, vec(vector.Item{Idx: 1, Weight: 10}, vector.Item{Idx: 2, Weight: 10}))
	// only term 2 is clustered; term 2 has the lower query weight, so it is
	// dropped once query_cut=1 keeps only the top-weighted coordinate (1).
	f.store.Insert(term(2), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 2, Weight: 10}),
		Members:       []posting.Member{{DocID: 1, Weight: 10}},
		ShouldNotSkip: true,
	}})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 1, Weight: 100}, vector.Item{Idx: 2, Weight: 1})
	res := exec.Search(context.Background(), q, Params{K: 10, QueryCut: 1, HeapFactor: 1.0})

	if len(res.Hits) != 0 {
		t.Fatalf("expected no hits: query_cut=1 keeps coordinate 1 only, which has no clustered postings, got %+v", res.Hits)
	}
}

func TestSearchVisitedSetPreventsDoubleScoring(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(1, vec(vector.Item{Idx: 1, Weight: 50}, vector.Item{Idx: 2, Weight: 50}))

	f.store.Insert(term(1), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 1, Weight: 50}),
		Members:       []posting.Member{{DocID: 1, Weight: 50}},
		ShouldNotSkip: true,
	}})
	f.store.Insert(term(2), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 2, Weight: 50}),
		Members:       []posting.Member{{DocID: 1, Weight: 50}},
		ShouldNotSkip: true,
	}})

	exec := New(f.fwd, f.store, 10, 1.0, 1.0)
	q := vec(vector.Item{Idx: 1, Weight: 10}, vector.Item{Idx: 2, Weight: 10})
	res := exec.Search(context.Background(), q, Params{K: 10, QueryCut: 2, HeapFactor: 1.0})

	if len(res.Hits) != 1 {
		t.Fatalf("expected doc 1 counted exactly once across two terms, got %+v", res.Hits)
	}
}

func TestSearchReportsQueryDurationToRecorder(t *testing.T) {
	f := newFixture(t, 10)
	f.fwd.Insert(1, vec(vector.Item{Idx: 1, Weight: 50}))
	f.store.Insert(term(1), posting.Clusters{{
		Summary:       vec(vector.Item{Idx: 1, Weight: 50}),
		Members:       []posting.Member{{DocID: 1, Weight: 50}},
		ShouldNotSkip: true,
	}})

	rec := telemetry.New(nil)
	exec := New(f.fwd, f.store, 10, 1.0, 1.0).WithRecorder(rec)
	q := vec(vector.Item{Idx: 1, Weight: 10})
	exec.Search(context.Background(), q, Params{K: 10, QueryCut: 1, HeapFactor: 1.0})

	if got := rec.QueryObservations(); got != 1 {
		t.Fatalf("expected Search to report exactly one query observation, got %d", got)
	}
}
