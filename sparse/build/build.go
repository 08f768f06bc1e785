// Package build implements the clustering/build engine (C6, spec.md
// §4.6): per-term k-means-like grouping of a term's documents by sparse
// dot product, producing pruned summary sketches for the ANN executor.
//
// Grounded on timheuer-milvus's clustering_compactor.go (centroid-based
// clustering with a bounded refinement loop over segments) and
// parallelized per term with golang.org/x/sync/errgroup, matching the
// teacher's bounded-worker-pool idiom (mpather.JgroupOpts.Parallel in
// xact/xs/tcb.go).
package build

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/sparseann/seismic/cmn/config"
	"github.com/sparseann/seismic/cmn/nlog"
	"github.com/sparseann/seismic/sparse/forward"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/vector"
)

// RawPosting is one (docId, float weight) pair as the host streams it
// for docs_of(t) (spec.md §6).
type RawPosting struct {
	DocID  uint32
	Weight float32
}

// Config mirrors the per-field build knobs from spec.md §6 plus a
// deterministic seed: spec.md §8's property 7 requires clustering to be
// bit-identical across runs given fixed seeds.
type Config struct {
	NPostings            uint32
	SummaryPruneRatio    float32
	ClusterRatio         float32
	ApproximateThreshold uint32
	IndexThreadQty       int
	Scale                float32
	Seed                 int64
}

// FromIndexConfig adapts a validated cmn/config.Index into a build
// Config, adding the per-build Scale/Seed the host supplies out of band.
func FromIndexConfig(c *config.Index, scale float32, seed int64) Config {
	return Config{
		NPostings:            c.NPostings,
		SummaryPruneRatio:    c.SummaryPruneRatio,
		ClusterRatio:         c.ClusterRatio,
		ApproximateThreshold: c.ApproximateThreshold,
		IndexThreadQty:       c.IndexThreadQty,
		Scale:                scale,
		Seed:                 seed,
	}
}

// Engine runs the clustering build pipeline for a field.
type Engine struct {
	cfg Config
}

// New creates an Engine with cfg.
func New(cfg Config) *Engine { return &Engine{cfg: cfg} }

// BuildField clusters every term in postings whose raw posting length
// exceeds ApproximateThreshold, writing the resulting clusters into
// store. Terms at or below the threshold are left for the host's linear
// scorer (spec.md §4.6 "Invoked once per (segment, field, term) when the
// number of documents posting the term exceeds approximate_threshold").
// Terms are clustered concurrently on a worker pool bounded by
// IndexThreadQty.
func (e *Engine) BuildField(postings map[string][]RawPosting, fwd *forward.Index, store *posting.Store) error {
	runID, err := shortid.Generate()
	if err != nil {
		runID = "build"
	}

	var g errgroup.Group
	g.SetLimit(max(e.cfg.IndexThreadQty, 1))

	nlog.Infof("[%s] clustering build starting: %d candidate terms", runID, len(postings))
	for term, raw := range postings {
		term, raw := term, raw
		if uint32(len(raw)) <= e.cfg.ApproximateThreshold {
			continue
		}
		g.Go(func() error {
			clusters := e.clusterTerm([]byte(term), raw, fwd)
			store.Insert([]byte(term), clusters)
			return nil
		})
	}
	err = g.Wait()
	nlog.Infof("[%s] clustering build done", runID)
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// clusterTerm runs the seven-step algorithm from spec.md §4.6 for one
// term's raw posting (steps 5-7 in buildClusters).
func (e *Engine) clusterTerm(term []byte, raw []RawPosting, fwd *forward.Index) posting.Clusters {
	retained := topPostings(raw, e.cfg.NPostings)

	rng := rand.New(rand.NewSource(e.cfg.Seed ^ int64(xxhash.Checksum64(term))))
	reps := pickRepresentatives(retained, e.cfg.ClusterRatio, rng)
	if len(reps) == 0 {
		return nil
	}

	repVecs := make([]vector.Vector, len(reps))
	for i, docID := range reps {
		v, ok := fwd.Read(docID)
		if !ok {
			nlog.Warningf("build: representative doc %d missing from forward index, using an empty seed vector", docID)
			continue
		}
		repVecs[i] = v
	}

	assign := assignToRepresentatives(retained, repVecs, fwd)
	assign = refineOnce(retained, assign, len(reps), fwd)

	return buildClusters(retained, assign, len(reps), fwd, e.cfg.SummaryPruneRatio, e.cfg.Scale)
}

// topPostings keeps the top nPostings documents by weight (spec.md §4.6
// step 1), using a bounded min-heap so the whole posting is scanned once.
// If the posting is shorter than nPostings, every document is kept. The
// result is sorted ascending by docId so downstream steps (representative
// sampling, assignment) are deterministic regardless of the host's
// iteration order.
func topPostings(raw []RawPosting, nPostings uint32) []RawPosting {
	if uint32(len(raw)) <= nPostings || nPostings == 0 {
		out := append([]RawPosting(nil), raw...)
		sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
		return out
	}

	h := &weightMinHeap{}
	heap.Init(h)
	for _, p := range raw {
		if h.Len() < int(nPostings) {
			heap.Push(h, p)
			continue
		}
		if p.Weight > (*h)[0].Weight {
			heap.Pop(h)
			heap.Push(h, p)
		}
	}
	out := make([]RawPosting, len(*h))
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

type weightMinHeap []RawPosting

func (h weightMinHeap) Len() int            { return len(h) }
func (h weightMinHeap) Less(i, j int) bool  { return h[i].Weight < h[j].Weight }
func (h weightMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *weightMinHeap) Push(x any)         { *h = append(*h, x.(RawPosting)) }
func (h *weightMinHeap) Pop() any {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// pickRepresentatives chooses k = ceil(clusterRatio * len(retained)) seed
// documents uniformly without replacement (spec.md §4.6 step 2),
// returning their docIds in representative-index order (index 0 is
// "representative 0", used for tie-breaking).
func pickRepresentatives(retained []RawPosting, clusterRatio float32, rng *rand.Rand) []uint32 {
	n := len(retained)
	if n == 0 {
		return nil
	}
	k := int(math.Ceil(float64(clusterRatio) * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	perm := rng.Perm(n)
	reps := make([]uint32, k)
	for i := 0; i < k; i++ {
		reps[i] = retained[perm[i]].DocID
	}
	return reps
}

// assignToRepresentatives assigns each retained document to the
// representative with the highest dot product, breaking ties toward the
// smallest representative index (spec.md §4.6 step 3).
func assignToRepresentatives(retained []RawPosting, reps []vector.Vector, fwd *forward.Index) []int {
	assign := make([]int, len(retained))
	for i, p := range retained {
		v, ok := fwd.Read(p.DocID)
		if !ok {
			assign[i] = -1 // treat as absent (spec.md §4.6 "Failure")
			continue
		}
		assign[i] = argmaxDot(v, reps)
	}
	return assign
}

func argmaxDot(v vector.Vector, reps []vector.Vector) int {
	best, bestScore := -1, int64(-1)
	for i, r := range reps {
		score := int64(v.Dot(r))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// refineOnce recomputes each cluster's centroid as the coordinate-wise
// mean of its members and re-assigns documents against the new
// centroids, exactly one pass (spec.md §4.6 step 4: "at most one such
// pass; subsequent passes are out of scope").
func refineOnce(retained []RawPosting, assign []int, k int, fwd *forward.Index) []int {
	sums := make([]map[uint32]uint32, k) // coordinate -> weight sum
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make(map[uint32]uint32)
	}
	for i, p := range retained {
		c := assign[i]
		if c < 0 {
			continue
		}
		v, ok := fwd.Read(p.DocID)
		if !ok {
			continue
		}
		counts[c]++
		for _, it := range v.Items() {
			sums[c][it.Idx] += uint32(it.Weight)
		}
	}

	centroids := make([]vector.Vector, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		items := make([]vector.Item, 0, len(sums[c]))
		for idx, sum := range sums[c] {
			mean := sum / uint32(counts[c])
			if mean == 0 {
				continue
			}
			if mean > 255 {
				mean = 255
			}
			items = append(items, vector.Item{Idx: idx, Weight: uint8(mean)})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Idx < items[j].Idx })
		centroids[c] = vector.FromSorted(items)
	}

	newAssign := make([]int, len(retained))
	for i, p := range retained {
		if assign[i] < 0 {
			newAssign[i] = -1
			continue
		}
		v, ok := fwd.Read(p.DocID)
		if !ok {
			newAssign[i] = -1
			continue
		}
		newAssign[i] = argmaxDot(v, centroids)
	}
	return newAssign
}

// minClusterSafetyMembers and the build's SummaryPruneRatio define the
// "safety floor" spec.md §4.6 step 6 names without pinning a number: a
// cluster smaller than minClusterSafetyMembers, or whose kept summary mass
// falls short of SummaryPruneRatio of its own total mass (which should never
// happen given the accumulate-until-ratio loop below, but is checked
// defensively), forces ShouldNotSkip.
const minClusterSafetyMembers = 2

// buildClusters produces the final posting.Clusters for one term:
// groups retained docs by assignment, builds each cluster's pruned
// summary (spec.md §4.6 step 5), sets ShouldNotSkip (step 6), and sorts
// members by descending weight (step 7).
func buildClusters(retained []RawPosting, assign []int, k int, fwd *forward.Index, pruneRatio, scale float32) posting.Clusters {
	members := make([][]posting.Member, k)
	vectors := make([][]vector.Vector, k)
	for i, p := range retained {
		c := assign[i]
		if c < 0 {
			continue
		}
		v, ok := fwd.Read(p.DocID)
		if !ok {
			continue
		}
		weight := weightOf(p, scale)
		members[c] = append(members[c], posting.Member{DocID: p.DocID, Weight: weight})
		vectors[c] = append(vectors[c], v)
	}

	out := make(posting.Clusters, 0, k)
	for c := 0; c < k; c++ {
		if len(members[c]) == 0 {
			continue
		}
		summary, keptMass, totalMass := pruneSummary(vectors[c], pruneRatio)

		sort.Slice(members[c], func(i, j int) bool { return members[c][i].Weight > members[c][j].Weight })

		shouldNotSkip := len(members[c]) < minClusterSafetyMembers ||
			(totalMass > 0 && float64(keptMass) < float64(pruneRatio)*float64(totalMass))

		out = append(out, posting.Cluster{
			Summary:       summary,
			Members:       members[c],
			ShouldNotSkip: shouldNotSkip,
		})
	}
	return out
}

// weightOf recovers the quantized weight the member posted for this
// term's coordinate, quantizing the raw float weight against the
// build's configured Scale rather than a fixed divisor — member
// ordering and scoring both depend on this value matching whatever
// scale the rest of the segment was quantized with.
func weightOf(p RawPosting, scale float32) uint8 {
	return vector.Quantize(p.Weight, scale)
}

// pruneSummary implements spec.md §4.6 step 5: coordinate-wise max over
// member vectors, then keep the smallest descending-weight prefix whose
// cumulative mass >= pruneRatio * total mass, then re-sort by index.
func pruneSummary(members []vector.Vector, pruneRatio float32) (summary vector.Vector, keptMass, totalMass uint64) {
	var merged vector.Vector
	for _, v := range members {
		merged = vector.Merge(merged, v)
	}
	items := append([]vector.Item(nil), merged.Items()...)
	totalMass = merged.TotalMass()
	if totalMass == 0 {
		return vector.Vector{}, 0, 0
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Weight > items[j].Weight })

	target := uint64(math.Ceil(float64(pruneRatio) * float64(totalMass)))
	var cum uint64
	kept := items[:0:0]
	for _, it := range items {
		if cum >= target {
			break
		}
		kept = append(kept, it)
		cum += uint64(it.Weight)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Idx < kept[j].Idx })
	return vector.FromSorted(kept), cum, totalMass
}
