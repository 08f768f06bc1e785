// Package posting implements the clustered posting store (C4, spec.md
// §3, §4.4): term -> ordered sequence of document clusters, each with a
// pruned summary sketch used for pruning at query time.
package posting

import "github.com/sparseann/seismic/sparse/vector"

// Member is one document's membership in a cluster: its docId and the
// quantized weight it posted for the cluster's term.
type Member struct {
	DocID  uint32
	Weight uint8
}

// clusterHeaderBytes approximates the struct/slice-header overhead
// charged per cluster (summary vector header is charged separately via
// Vector.RAMBytesUsed).
const clusterHeaderBytes = 24

// memberBytes is the accounted cost of one Member: 4 bytes docId + 1
// byte weight, matching the 5-bytes-per-item convention used for
// vector.Item (spec.md §4.1).
const memberBytes = 5

// Cluster is one Document Cluster (spec.md §3): a pruned coordinate-max
// summary, members sorted by descending weight (for early-stop scoring),
// and a ShouldNotSkip flag forcing evaluation when the summary bound
// can't be trusted (singleton/undersized clusters, spec.md §4.6 step 6).
type Cluster struct {
	Summary       vector.Vector
	Members       []Member
	ShouldNotSkip bool
}

// RAMBytesUsed is the accounted size charged against the circuit
// breaker: the summary vector's own accounting plus 5 bytes per member
// plus a fixed per-cluster header.
func (c Cluster) RAMBytesUsed() int64 {
	return c.Summary.RAMBytesUsed() + clusterHeaderBytes + memberBytes*int64(len(c.Members))
}

// Equal reports structural equality (summary, member ordering, and
// flag) — used by the codec round-trip property test (spec.md §8.4).
func (c Cluster) Equal(o Cluster) bool {
	if c.ShouldNotSkip != o.ShouldNotSkip {
		return false
	}
	if !c.Summary.Equal(o.Summary) {
		return false
	}
	if len(c.Members) != len(o.Members) {
		return false
	}
	for i := range c.Members {
		if c.Members[i] != o.Members[i] {
			return false
		}
	}
	return true
}

// Clusters is the ordered (but semantically unordered, per spec.md §3)
// sequence of Document Clusters posted for one term.
type Clusters []Cluster

// RAMBytesUsed sums the per-cluster accounting plus a store-entry
// header (spec.md §4.4 "insert": "cost = sum(cluster.ram_bytes_used()) +
// header").
func (cs Clusters) RAMBytesUsed() int64 {
	const entryHeaderBytes = 16
	total := int64(entryHeaderBytes)
	for _, c := range cs {
		total += c.RAMBytesUsed()
	}
	return total
}

// EqualClusters reports whether a and b contain equal clusters. Clusters
// are a set per spec.md §3 ("order is not semantically significant"),
// but the codec preserves write order, so the round-trip property
// (spec.md §8.4) can compare positionally.
func EqualClusters(a, b Clusters) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
