// Package service provides the host-owned handle (C9) that replaces
// per-process singleton caches: one IndexService instance threads a
// shared memory budget and pair of LRU caches through every (segment,
// field) forward index and posting store it creates, instead of reaching
// for package-level globals (spec.md §9).
//
// Grounded on xact/xs's factory pattern (a constructor struct threading
// *cmn.Config and collaborator handles through every xaction instance it
// builds) rather than the package-level registries elsewhere in the
// teacher.
package service

import (
	"sync"

	"github.com/sparseann/seismic/cmn/config"
	"github.com/sparseann/seismic/sparse/budget"
	"github.com/sparseann/seismic/sparse/forward"
	"github.com/sparseann/seismic/sparse/lru"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/telemetry"
)

// Handle is the pair of resident caches for one (segment, field).
type Handle struct {
	Forward *forward.Index
	Posting *posting.Store
}

// IndexService owns one circuit-breaker budget and one pair of LRU
// caches (documents, terms) shared by every field it serves. It holds no
// package-level state: a host process creates exactly one, and tests
// construct private ones freely.
type IndexService struct {
	cfg    *config.Index
	budget *budget.Breaker

	mu      sync.Mutex
	handles map[lru.CacheKey]*Handle
	docLRU  *lru.Cache[lru.DocumentKey]
	termLRU *lru.Cache[lru.TermKey]

	rec *telemetry.Recorder
}

// New creates an IndexService with a circuit breaker capped at
// limitBytes (0 disables caching per spec.md §6's "0% disables
// caching").
func New(cfg *config.Index, limitBytes int64) *IndexService {
	s := &IndexService{
		cfg:     cfg,
		budget:  budget.New(limitBytes, nil, "index-service"),
		handles: make(map[lru.CacheKey]*Handle),
	}
	s.docLRU = lru.New[lru.DocumentKey](func(k lru.DocumentKey) int64 {
		s.mu.Lock()
		h, ok := s.handles[k.Cache]
		s.mu.Unlock()
		if !ok {
			return 0
		}
		if s.rec != nil {
			s.rec.Eviction("forward")
		}
		return h.Forward.Erase(k.DocID)
	})
	s.termLRU = lru.New[lru.TermKey](func(k lru.TermKey) int64 {
		s.mu.Lock()
		h, ok := s.handles[k.Cache]
		s.mu.Unlock()
		if !ok {
			return 0
		}
		if s.rec != nil {
			s.rec.Eviction("posting")
		}
		return h.Posting.EraseByTermKey(k)
	})
	return s
}

// WithRecorder attaches a telemetry.Recorder so cache evictions driven by
// this service's LRUs, and the entries Close purges, are reported.
// Optional: nil leaves evictions unobserved.
func (s *IndexService) WithRecorder(rec *telemetry.Recorder) *IndexService {
	s.rec = rec
	return s
}

// Open returns the Handle for (segmentID, field), creating it lazily on
// first use. maxDoc sizes the forward index's slot array and is ignored
// on subsequent calls for an already-open field.
func (s *IndexService) Open(segmentID, field string, maxDoc uint32) *Handle {
	key := lru.CacheKey{SegmentID: segmentID, Field: field}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[key]; ok {
		return h
	}
	h := &Handle{
		Forward: forward.New(key, maxDoc, s.budget, s.docLRU),
		Posting: posting.New(key, s.budget, s.termLRU),
	}
	if s.rec != nil {
		h.Forward.SetRecorder(s.rec)
		h.Posting.SetRecorder(s.rec)
	}
	s.handles[key] = h
	return h
}

// Close purges every cache entry for (segmentID, field) and releases all
// bytes those entries held, via the doc/term LRUs' RemoveIndex —
// spec.md §9's remove_index. Idempotent.
func (s *IndexService) Close(segmentID, field string) {
	key := lru.CacheKey{SegmentID: segmentID, Field: field}

	s.mu.Lock()
	h, ok := s.handles[key]
	delete(s.handles, key)
	s.mu.Unlock()
	if !ok {
		return
	}

	// RemoveIndex only purges the recency structure (spec.md §3: the LRU
	// stores no payloads); the actual erase-and-release against the
	// payload stores is this call's responsibility.
	for _, k := range s.docLRU.RemoveIndex(key, func(k lru.DocumentKey) lru.CacheKey { return k.Cache }) {
		if s.rec != nil {
			s.rec.Eviction("forward")
		}
		h.Forward.Erase(k.DocID)
	}
	for _, k := range s.termLRU.RemoveIndex(key, func(k lru.TermKey) lru.CacheKey { return k.Cache }) {
		if s.rec != nil {
			s.rec.Eviction("posting")
		}
		h.Posting.EraseByTermKey(k)
	}
}

// Budget exposes the shared circuit breaker, mainly for telemetry wiring.
func (s *IndexService) Budget() *budget.Breaker { return s.budget }

// Config returns the validated per-field configuration this service was
// constructed with.
func (s *IndexService) Config() *config.Index { return s.cfg }
