// Package lru implements the single generic LRU cache that spec.md §9
// calls for in place of the teacher's duplicated LRU class hierarchy
// (LRUTermCache / LRUDocumentCache / AbstractLRUCache / AbstractLruCache):
// one doubly-linked-list-plus-map cache parameterized by key type, with
// an eviction callback. The document and term caches (spec.md §4.5) are
// two instantiations of this same type, not subclasses.
//
// Grounded on the generic Cache[K,V] shape in the codefang/pkg/alg/lru
// reference (entries, head/tail sentinels, options) and on aistore's own
// lru.go eviction-loop idiom: evict() pops the coldest entry repeatedly
// until the wanted budget is freed or the structure is empty.
package lru

import "sync"

type node[K comparable] struct {
	key        K
	prev, next *node[K]
}

// DoEvict is called for the LRU-most key when eviction needs to free
// bytes; it performs the subtype-specific erase (ForwardIndex.erase or
// ClusteredPostingStore.erase, spec.md §4.5) and returns bytes freed.
type DoEvict[K comparable] func(key K) (bytesFreed int64)

// Cache is a thread-safe, generic LRU recency tracker. It stores no
// payloads of its own — spec.md §3 is explicit that "neither stores the
// payload — payloads live in C3/C4." Cache only orders keys by recency
// and drives eviction through DoEvict.
type Cache[K comparable] struct {
	mu      sync.Mutex
	nodes   map[K]*node[K]
	head    *node[K] // most recently used
	tail    *node[K] // least recently used
	doEvict DoEvict[K]
}

// New creates a Cache whose Evict calls doEvict for each key it retires.
func New[K comparable](doEvict DoEvict[K]) *Cache[K] {
	return &Cache[K]{
		nodes:   make(map[K]*node[K]),
		doEvict: doEvict,
	}
}

// Touch moves key to the most-recently-used position, inserting it if
// absent. spec.md §4.5's ordering guarantee: after Touch(k) returns, k is
// strictly more-recent than any key whose last touch completed before
// this Touch started.
func (c *Cache[K]) Touch(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.nodes[key]; ok {
		c.unlinkLocked(n)
		c.pushFrontLocked(n)
		return
	}
	n := &node[K]{key: key}
	c.nodes[key] = n
	c.pushFrontLocked(n)
}

// Forget removes key from the recency structure without evicting its
// payload (used when the caller erases the payload itself, e.g. a
// write-once ForwardIndex slot that is never re-evicted).
func (c *Cache[K]) Forget(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[key]; ok {
		c.unlinkLocked(n)
		delete(c.nodes, key)
	}
}

// Len returns the number of tracked keys.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Evict repeatedly pops the LRU-most key and calls doEvict on it,
// accumulating bytes freed until bytesWanted is reached or the cache
// empties (spec.md §4.5). Eviction is non-reentrant per spec.md §5: a
// concurrent Evict call on the same Cache simply contends on the lock
// and makes incremental progress — there is no separate re-entrancy
// guard because the lock itself serializes eviction.
func (c *Cache[K]) Evict(bytesWanted int64) (bytesFreed int64) {
	for bytesFreed < bytesWanted {
		key, ok := c.popTail()
		if !ok {
			return bytesFreed
		}
		bytesFreed += c.doEvict(key)
	}
	return bytesFreed
}

// RemoveIndex purges all entries whose CacheKey embedding equals ck
// (spec.md §4.5 "remove_index"). extract maps a key K to its embedded
// CacheKey; the two instantiations (DocumentKey, TermKey) both embed one.
func (c *Cache[K]) RemoveIndex(ck CacheKey, extract func(K) CacheKey) (evicted []K) {
	c.mu.Lock()
	var toRemove []*node[K]
	for k, n := range c.nodes {
		if extract(k) == ck {
			toRemove = append(toRemove, n)
			evicted = append(evicted, k)
		}
	}
	for _, n := range toRemove {
		c.unlinkLocked(n)
		delete(c.nodes, n.key)
	}
	c.mu.Unlock()
	return evicted
}

func (c *Cache[K]) popTail() (K, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tail == nil {
		var zero K
		return zero, false
	}
	n := c.tail
	c.unlinkLocked(n)
	delete(c.nodes, n.key)
	return n.key, true
}

func (c *Cache[K]) pushFrontLocked(n *node[K]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[K]) unlinkLocked(n *node[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if c.head == n {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
