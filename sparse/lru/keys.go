package lru

// CacheKey identifies one per-segment, per-field index (spec.md §3).
// Equality and hashing are structural on the pair, which Go gives for
// free on a comparable struct used as a map key.
type CacheKey struct {
	SegmentID string
	Field     string
}

// DocumentKey is the key space for the document-grained LRU (spec.md
// §4.5 / §3 "LRU Access Record").
type DocumentKey struct {
	Cache CacheKey
	DocID uint32
}

// TermKey is the key space for the term-grained LRU. Term bytes are
// stored as a string so TermKey remains comparable (and thus usable as a
// map key) without an extra copy on the hot touch() path — Go string
// conversion from []byte only copies once, at TermKey construction.
type TermKey struct {
	Cache CacheKey
	Term  string
}
