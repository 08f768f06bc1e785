package posting

import (
	"sync"

	xxhash "github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/sparseann/seismic/cmn/nlog"
	"github.com/sparseann/seismic/sparse/budget"
	"github.com/sparseann/seismic/sparse/lru"
	"github.com/sparseann/seismic/sparse/telemetry"
)

// numShards partitions the term map to bound per-shard lock contention;
// 16 is the teacher-scale default for a single segment's term count
// (thousands to low millions of distinct terms per field).
const numShards = 16

// cuckooCapacityHint sizes each shard's negative-lookup pre-filter. It
// is a capacity hint, not a hard cap — seiflotfy/cuckoofilter grows via
// internal buckets and simply degrades toward more false positives (never
// false negatives) if the hint undershoots the real term count.
const cuckooCapacityHint = 1 << 16

type shard struct {
	mu     sync.RWMutex
	m      map[string]Clusters
	filter *cuckoo.Filter
}

func newShard() *shard {
	return &shard{
		m:      make(map[string]Clusters),
		filter: cuckoo.NewFilter(cuckooCapacityHint),
	}
}

// Store is the clustered posting store for one (segment, field)
// (spec.md §4.4). The term map is sharded and guarded per-shard, with a
// cuckoofilter negative pre-check per shard so a Read for a term that
// was never resident short-circuits before taking the shard lock —
// grounded on the Bloom-prefilter option in the codefang/pkg/alg/lru
// reference cache, using the pack's actual cuckoofilter dependency.
type Store struct {
	key     lru.CacheKey
	shards  [numShards]*shard
	budget  *budget.Breaker
	termLRU *lru.Cache[lru.TermKey]
	rec     *telemetry.Recorder
}

// SetRecorder attaches a telemetry.Recorder so Read reports cache
// hits/misses. Optional: a Store with no Recorder set just skips
// reporting.
func (s *Store) SetRecorder(rec *telemetry.Recorder) { s.rec = rec }

// New creates a Store for the given cache key, backed by b for byte
// accounting and termLRU for recency/eviction.
func New(key lru.CacheKey, b *budget.Breaker, termLRU *lru.Cache[lru.TermKey]) *Store {
	s := &Store{key: key, budget: b, termLRU: termLRU}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func shardIndex(term []byte) int {
	h := xxhash.Checksum64(term)
	return int(h % numShards)
}

// Insert stores clusters for term, cloning the term bytes to detach from
// caller-owned buffers (spec.md §4.4). Uses insert-if-absent semantics:
// a concurrent winner keeps the slot, the loser releases the bytes it
// reserved. Publishes a term-LRU access record on success.
func (s *Store) Insert(term []byte, clusters Clusters) {
	cost := clusters.RAMBytesUsed()
	if err := s.budget.Reserve(cost, "posting.Insert"); err != nil {
		s.termLRU.Evict(cost)
		if err = s.budget.Reserve(cost, "posting.Insert retry"); err != nil {
			nlog.Warningf("posting: skipping term %q: %v", term, err)
			return
		}
	}

	sh := s.shards[shardIndex(term)]
	termStr := string(term) // detaches from the caller's buffer
	sh.mu.Lock()
	if _, exists := sh.m[termStr]; exists {
		sh.mu.Unlock()
		s.budget.Release(cost) // lost the race: release what we reserved
		return
	}
	sh.m[termStr] = clusters
	sh.filter.InsertUnique(term)
	sh.mu.Unlock()

	s.termLRU.Touch(lru.TermKey{Cache: s.key, Term: termStr})
}

// Read returns the cluster list for term, publishing a term-LRU access
// record on hit. A miss is a SoftMiss (spec.md §7), not an error.
func (s *Store) Read(term []byte) (Clusters, bool) {
	sh := s.shards[shardIndex(term)]
	if !sh.filter.Lookup(term) {
		if s.rec != nil {
			s.rec.CacheMiss("posting")
		}
		return nil, false
	}
	sh.mu.RLock()
	clusters, ok := sh.m[string(term)]
	sh.mu.RUnlock()
	if !ok {
		if s.rec != nil {
			s.rec.CacheMiss("posting")
		}
		return nil, false
	}
	s.termLRU.Touch(lru.TermKey{Cache: s.key, Term: string(term)})
	if s.rec != nil {
		s.rec.CacheHit("posting")
	}
	return clusters, true
}

// Erase removes term's entry, releasing its accounted bytes, and
// returns the reclaimed byte count. Idempotent (spec.md §4.4).
func (s *Store) Erase(term []byte) (bytesFreed int64) {
	sh := s.shards[shardIndex(term)]
	termStr := string(term)
	sh.mu.Lock()
	clusters, ok := sh.m[termStr]
	if ok {
		delete(sh.m, termStr)
		sh.filter.Delete(term)
	}
	sh.mu.Unlock()
	if !ok {
		return 0
	}
	bytesFreed = clusters.RAMBytesUsed()
	s.budget.Release(bytesFreed)
	return bytesFreed
}

// EraseByTermKey adapts Erase to the lru.DoEvict[lru.TermKey] signature
// used when wiring a term LRU's eviction callback to this Store.
func (s *Store) EraseByTermKey(k lru.TermKey) int64 { return s.Erase([]byte(k.Term)) }

// Terms returns a read-only snapshot of currently resident terms.
// Races with concurrent evictions are tolerated (spec.md §4.4): the
// snapshot may include a term erased moments after this call returns, or
// omit one inserted moments before.
func (s *Store) Terms() []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for t := range sh.m {
			out = append(out, t)
		}
		sh.mu.RUnlock()
	}
	return out
}
