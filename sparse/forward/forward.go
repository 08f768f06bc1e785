// Package forward implements the in-memory forward index (C3, spec.md
// §4.3): docId -> full sparse vector, fixed-size per segment/field,
// write-once per slot, with byte accounting against a shared budget
// breaker and LRU-tracked recency.
//
// Concurrency follows spec.md §5: single writer per segment during
// build, many readers during query. Each slot holds a ref-counted
// payload (an *entry) behind a sync/atomic.Pointer so an eviction can
// never free bytes out from under an in-flight reader — the budget
// release is deferred to the last ref-holder to drop its pin, mirroring
// the erase-after-quiesce ordering guarantee spec.md §5 requires even
// though Go's GC would keep the memory itself alive regardless.
package forward

import (
	"sync/atomic"

	cmnatomic "github.com/sparseann/seismic/cmn/atomic"
	"github.com/sparseann/seismic/cmn/nlog"
	"github.com/sparseann/seismic/sparse/budget"
	"github.com/sparseann/seismic/sparse/lru"
	"github.com/sparseann/seismic/sparse/telemetry"
	"github.com/sparseann/seismic/sparse/vector"
)

type entry struct {
	vec   vector.Vector
	bytes int64
	refc  cmnatomic.Int32 // 1 for the slot's own reference, +1 per in-flight reader
}

// Index is one segment/field's forward index.
type Index struct {
	key    lru.CacheKey
	maxDoc uint32
	slots  []atomic.Pointer[entry]
	budget *budget.Breaker
	docLRU *lru.Cache[lru.DocumentKey]
	rec    *telemetry.Recorder
}

// SetRecorder attaches a telemetry.Recorder so Read reports cache
// hits/misses. Optional: an Index with no Recorder set just skips
// reporting.
func (idx *Index) SetRecorder(rec *telemetry.Recorder) { idx.rec = rec }

// New creates a forward Index for maxDoc documents, backed by b for byte
// accounting and docLRU for recency/eviction.
func New(key lru.CacheKey, maxDoc uint32, b *budget.Breaker, docLRU *lru.Cache[lru.DocumentKey]) *Index {
	return &Index{
		key:    key,
		maxDoc: maxDoc,
		slots:  make([]atomic.Pointer[entry], maxDoc),
		budget: b,
		docLRU: docLRU,
	}
}

// Insert records vec at docID. No-op (spec.md §4.3) if docID is out of
// range, the slot is already occupied, or vec is empty. On budget
// refusal it asks the document LRU to evict once and retries; a second
// refusal is a silent skip (logged at warn).
func (idx *Index) Insert(docID uint32, vec vector.Vector) {
	if docID >= idx.maxDoc || vec.IsEmpty() {
		return
	}
	slot := &idx.slots[docID]
	if slot.Load() != nil {
		return // write-once: second write is a no-op
	}

	bytes := vec.RAMBytesUsed()
	if err := idx.budget.Reserve(bytes, "forward.Insert"); err != nil {
		idx.docLRU.Evict(bytes)
		if err = idx.budget.Reserve(bytes, "forward.Insert retry"); err != nil {
			nlog.Warningf("forward: skipping doc %d: %v", docID, err)
			return
		}
	}

	e := &entry{vec: vec, bytes: bytes}
	e.refc.Store(1)
	if !slot.CompareAndSwap(nil, e) {
		// another writer won the race (shouldn't happen under the
		// documented single-writer-per-segment contract, but stay safe):
		// release what we just reserved.
		idx.budget.Release(bytes)
		return
	}
	idx.docLRU.Touch(lru.DocumentKey{Cache: idx.key, DocID: docID})
}

// Read returns the vector stored at docID, or (zero, false) if absent —
// a SoftMiss per spec.md §7, not an error.
func (idx *Index) Read(docID uint32) (vector.Vector, bool) {
	if docID >= idx.maxDoc {
		return vector.Vector{}, false
	}
	slot := &idx.slots[docID]
	e := slot.Load()
	if e == nil || !idx.pin(e) {
		if idx.rec != nil {
			idx.rec.CacheMiss("forward")
		}
		return vector.Vector{}, false
	}
	vec := e.vec
	idx.releaseRef(e)
	idx.docLRU.Touch(lru.DocumentKey{Cache: idx.key, DocID: docID})
	if idx.rec != nil {
		idx.rec.CacheHit("forward")
	}
	return vec, true
}

// pin tries to add a reader's reference to e, refusing if a concurrent
// Erase has already driven refc to 0 (and released its bytes) — an
// unconditional Add(1) would resurrect a dead refcount and cause
// releaseRef to double-release the entry's accounted bytes.
func (idx *Index) pin(e *entry) bool {
	for {
		cur := e.refc.Load()
		if cur <= 0 {
			return false
		}
		if e.refc.CAS(cur, cur+1) {
			return true
		}
	}
}

// Erase clears docID's slot, releasing its accounted bytes once the
// last reference drops, and returns the byte count reclaimed. Idempotent
// (spec.md §4.3).
func (idx *Index) Erase(docID uint32) (bytesFreed int64) {
	if docID >= idx.maxDoc {
		return 0
	}
	slot := &idx.slots[docID]
	e := slot.Swap(nil)
	if e == nil {
		return 0
	}
	return idx.releaseRef(e)
}

func (idx *Index) releaseRef(e *entry) (bytesFreed int64) {
	if e.refc.Add(-1) == 0 {
		idx.budget.Release(e.bytes)
		return e.bytes
	}
	return 0
}

// MaxDoc returns the segment's configured doc-id ceiling.
func (idx *Index) MaxDoc() uint32 { return idx.maxDoc }
