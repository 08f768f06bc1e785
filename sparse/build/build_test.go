package build

import (
	"testing"

	"github.com/sparseann/seismic/sparse/budget"
	"github.com/sparseann/seismic/sparse/forward"
	"github.com/sparseann/seismic/sparse/lru"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/vector"
)

func newFixtureIndex(t *testing.T, maxDoc uint32) *forward.Index {
	t.Helper()
	b := budget.New(1<<24, nil, "test")
	var idx *forward.Index
	docLRU := lru.New[lru.DocumentKey](func(k lru.DocumentKey) int64 {
		return idx.Erase(k.DocID)
	})
	idx = forward.New(lru.CacheKey{SegmentID: "seg", Field: "f"}, maxDoc, b, docLRU)
	return idx
}

func newFixtureStore(t *testing.T) *posting.Store {
	t.Helper()
	b := budget.New(1<<24, nil, "test")
	var store *posting.Store
	termLRU := lru.New[lru.TermKey](func(k lru.TermKey) int64 {
		return store.EraseByTermKey(k)
	})
	store = posting.New(lru.CacheKey{SegmentID: "seg", Field: "f"}, b, termLRU)
	return store
}

// seed a small corpus: 20 docs, each carrying coordinate 1 (the term
// under test) plus a handful of other coordinates so dot products
// between docs are meaningfully different.
func seedCorpus(t *testing.T, fwd *forward.Index, n int) []RawPosting {
	t.Helper()
	raw := make([]RawPosting, 0, n)
	for i := 0; i < n; i++ {
		docID := uint32(i)
		weight := float32(1 + i%7)
		pairs := []vector.RawPair{
			{Idx: 1, Weight: weight},
			{Idx: uint32(10 + i%3), Weight: float32(1 + i%5)},
		}
		fwd.Insert(docID, vector.Build(pairs, 1.0))
		raw = append(raw, RawPosting{DocID: docID, Weight: weight})
	}
	return raw
}

func TestBuildFieldSkipsBelowThreshold(t *testing.T) {
	fwd := newFixtureIndex(t, 100)
	store := newFixtureStore(t)
	raw := seedCorpus(t, fwd, 5)

	e := New(Config{
		NPostings:            100,
		SummaryPruneRatio:    0.9,
		ClusterRatio:         0.5,
		ApproximateThreshold: 10, // 5 docs <= threshold: skip clustering
		IndexThreadQty:       2,
		Scale:                1.0,
		Seed:                 1,
	})
	if err := e.BuildField(map[string][]RawPosting{"t": raw}, fwd, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.Read([]byte("t")); ok {
		t.Fatalf("expected term below approximate_threshold to remain unclustered")
	}
}

func TestBuildFieldProducesClusters(t *testing.T) {
	fwd := newFixtureIndex(t, 100)
	store := newFixtureStore(t)
	raw := seedCorpus(t, fwd, 40)

	e := New(Config{
		NPostings:            40,
		SummaryPruneRatio:    0.8,
		ClusterRatio:         0.25,
		ApproximateThreshold: 5,
		IndexThreadQty:       4,
		Scale:                1.0,
		Seed:                 42,
	})
	if err := e.BuildField(map[string][]RawPosting{"t": raw}, fwd, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusters, ok := store.Read([]byte("t"))
	if !ok {
		t.Fatalf("expected term above approximate_threshold to be clustered")
	}
	if len(clusters) == 0 {
		t.Fatalf("expected at least one cluster")
	}

	var totalMembers int
	for _, c := range clusters {
		if len(c.Members) == 0 {
			t.Fatalf("found empty cluster")
		}
		for i := 1; i < len(c.Members); i++ {
			if c.Members[i].Weight > c.Members[i-1].Weight {
				t.Fatalf("members not sorted by descending weight")
			}
		}
		if len(c.Members) < 2 && !c.ShouldNotSkip {
			t.Fatalf("singleton cluster must set ShouldNotSkip")
		}
		totalMembers += len(c.Members)
	}
	if totalMembers == 0 || totalMembers > 40 {
		t.Fatalf("unexpected total member count: %d", totalMembers)
	}
}

func TestClusterTermDeterministicGivenSeed(t *testing.T) {
	cfg := Config{
		NPostings:            40,
		SummaryPruneRatio:    0.8,
		ClusterRatio:         0.25,
		ApproximateThreshold: 5,
		IndexThreadQty:       4,
		Scale:                1.0,
		Seed:                 7,
	}

	fwd1 := newFixtureIndex(t, 100)
	raw1 := seedCorpus(t, fwd1, 40)
	c1 := New(cfg).clusterTerm([]byte("t"), raw1, fwd1)

	fwd2 := newFixtureIndex(t, 100)
	raw2 := seedCorpus(t, fwd2, 40)
	c2 := New(cfg).clusterTerm([]byte("t"), raw2, fwd2)

	if !posting.EqualClusters(c1, c2) {
		t.Fatalf("expected identical clustering for identical seed and input")
	}
}

func TestTopPostingsKeepsHighestWeights(t *testing.T) {
	raw := []RawPosting{
		{DocID: 0, Weight: 1},
		{DocID: 1, Weight: 9},
		{DocID: 2, Weight: 5},
		{DocID: 3, Weight: 3},
	}
	top := topPostings(raw, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 retained, got %d", len(top))
	}
	seen := map[uint32]bool{}
	for _, p := range top {
		seen[p.DocID] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected docs 1 and 2 (highest weights) retained, got %+v", top)
	}
}

func TestWeightOfHonorsConfiguredScale(t *testing.T) {
	p := RawPosting{DocID: 1, Weight: 100}
	if got := weightOf(p, 1.0); got != vector.Quantize(100, 1.0) {
		t.Fatalf("scale=1.0: got %d want %d", got, vector.Quantize(100, 1.0))
	}
	if got := weightOf(p, 2.0); got != vector.Quantize(100, 2.0) {
		t.Fatalf("scale=2.0: got %d want %d", got, vector.Quantize(100, 2.0))
	}
	if weightOf(p, 1.0) == weightOf(p, 2.0) {
		t.Fatalf("expected quantized weight to change with scale, got same value for both")
	}
}

func TestBuildFieldUsesConfiguredScaleForMemberWeights(t *testing.T) {
	cfg := Config{
		NPostings:            40,
		SummaryPruneRatio:    0.8,
		ClusterRatio:         0.25,
		ApproximateThreshold: 5,
		IndexThreadQty:       4,
		Seed:                 42,
	}

	fwd1 := newFixtureIndex(t, 100)
	raw1 := seedCorpus(t, fwd1, 40)
	cfg1 := cfg
	cfg1.Scale = 1.0
	store1 := newFixtureStore(t)
	if err := New(cfg1).BuildField(map[string][]RawPosting{"t": raw1}, fwd1, store1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clusters1, ok := store1.Read([]byte("t"))
	if !ok {
		t.Fatalf("expected term to be clustered")
	}

	fwd2 := newFixtureIndex(t, 100)
	raw2 := seedCorpus(t, fwd2, 40)
	cfg2 := cfg
	cfg2.Scale = 4.0
	store2 := newFixtureStore(t)
	if err := New(cfg2).BuildField(map[string][]RawPosting{"t": raw2}, fwd2, store2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clusters2, ok := store2.Read([]byte("t"))
	if !ok {
		t.Fatalf("expected term to be clustered")
	}

	if len(clusters1) != len(clusters2) {
		t.Fatalf("expected identical cluster assignment across Scale values (Scale doesn't affect assignment), got %d vs %d clusters", len(clusters1), len(clusters2))
	}
	var anyDifferent bool
	for c := range clusters1 {
		if len(clusters1[c].Members) != len(clusters2[c].Members) {
			t.Fatalf("expected identical member counts per cluster across Scale values")
		}
		for m := range clusters1[c].Members {
			if clusters1[c].Members[m].DocID != clusters2[c].Members[m].DocID {
				t.Fatalf("expected identical member docIds across Scale values")
			}
			if clusters1[c].Members[m].Weight != clusters2[c].Members[m].Weight {
				anyDifferent = true
			}
		}
	}
	if !anyDifferent {
		t.Fatalf("expected member weights to differ when Scale changes from 1.0 to 4.0")
	}
}

func TestTopPostingsKeepsAllWhenUnderNPostings(t *testing.T) {
	raw := []RawPosting{{DocID: 5, Weight: 1}, {DocID: 1, Weight: 2}}
	top := topPostings(raw, 10)
	if len(top) != 2 {
		t.Fatalf("expected all retained, got %d", len(top))
	}
	if top[0].DocID != 1 || top[1].DocID != 5 {
		t.Fatalf("expected docId-ascending order, got %+v", top)
	}
}
