package query

import "container/heap"

// hit is one (docId, score) candidate held in the capped result heap.
type hit struct {
	DocID uint32
	Score uint32
}

// capHeap is a min-heap over hits capped at k, ordered so the root is
// always the worst candidate to evict: lowest score, and among equal
// scores the larger docId (spec.md §4.8 tie-break: "smaller doc_id ranks
// higher").
type capHeap struct {
	items []hit
	k     int
}

func newCapHeap(k int) *capHeap {
	return &capHeap{items: make([]hit, 0, k), k: k}
}

func (h capHeap) Len() int { return len(h.items) }
func (h capHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}
func (h capHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *capHeap) Push(x any)   { h.items = append(h.items, x.(hit)) }
func (h *capHeap) Pop() any {
	old := h.items
	n := len(old)
	last := old[n-1]
	h.items = old[:n-1]
	return last
}

// Full reports whether the heap holds k items.
func (h *capHeap) Full() bool { return len(h.items) >= h.k }

// MinScore returns the score of the current worst candidate. Only valid
// when Full().
func (h *capHeap) MinScore() uint32 { return h.items[0].Score }

// Offer inserts (docID, score), replacing the worst candidate if the
// heap is already at capacity and score beats it (spec.md §4.8 step
// 2's "else if score > heap.min_score -> replace min").
func (h *capHeap) Offer(docID uint32, score uint32) {
	if h.k == 0 {
		return
	}
	if !h.Full() {
		heap.Push(h, hit{DocID: docID, Score: score})
		return
	}
	if score > h.items[0].Score {
		h.items[0] = hit{DocID: docID, Score: score}
		heap.Fix(h, 0)
	}
}

// Drain empties the heap into descending-score order, tie-broken by
// ascending docId (spec.md §4.8 step 3 + tie-breaking rule).
func (h *capHeap) Drain() []hit {
	out := make([]hit, len(h.items))
	copy(out, h.items)
	// sort descending by score, ascending by docId on ties
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			swap := a.Score < b.Score || (a.Score == b.Score && a.DocID > b.DocID)
			if !swap {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
