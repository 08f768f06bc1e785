// Package config holds the validated, JSON-parseable per-field index
// configuration (spec.md §6's six options), rejecting bad values at
// construction time rather than deep inside the build/query path.
package config

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/sparseann/seismic/cmn/cos"
	"github.com/sparseann/seismic/cmn/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Index is the per-(segment, field) build/query configuration the host
// supplies (spec.md §6).
type Index struct {
	NPostings            uint32  `json:"n_postings"`
	SummaryPruneRatio    float32 `json:"summary_prune_ratio"`
	ClusterRatio         float32 `json:"cluster_ratio"`
	ApproximateThreshold uint32  `json:"approximate_threshold"`
	IndexThreadQty       int     `json:"index_thread_qty"`
	CircuitBreakerLimit  string  `json:"circuit_breaker_limit"` // bytes, or "NN%"
}

// DefaultIndexThreadQty is used when the host configures 0 (spec.md §5:
// "default ≈ allocated-processors/2, min 1").
func DefaultIndexThreadQty(numCPU int) int {
	n := numCPU / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Parse decodes an Index config from JSON bytes.
func Parse(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalidArgument, "config.Parse", err)
	}
	return &idx, nil
}

// Validate enforces spec.md's invariants: ratios in (0,1], thread qty
// coerced to a sane default when zero, and the circuit-breaker limit
// spec parses cleanly against heapBytes (the process heap size, or any
// other base the host supplies for percent-style limits).
func (c *Index) Validate(numCPU int, heapBytes int64) error {
	if c.SummaryPruneRatio <= 0 || c.SummaryPruneRatio > 1 {
		return xerrors.New(xerrors.KindInvalidArgument, "config.Validate",
			"summary_prune_ratio must be in (0,1]")
	}
	if c.ClusterRatio <= 0 || c.ClusterRatio > 1 {
		return xerrors.New(xerrors.KindInvalidArgument, "config.Validate",
			"cluster_ratio must be in (0,1]")
	}
	if c.IndexThreadQty <= 0 {
		c.IndexThreadQty = DefaultIndexThreadQty(numCPU)
	}
	if c.CircuitBreakerLimit == "" {
		c.CircuitBreakerLimit = "0"
	}
	if _, err := cos.ParsePercentOrBytes(c.CircuitBreakerLimit, heapBytes); err != nil {
		return xerrors.Wrap(xerrors.KindInvalidArgument, "config.Validate", err)
	}
	return nil
}

// LimitBytes resolves CircuitBreakerLimit against heapBytes.
func (c *Index) LimitBytes(heapBytes int64) int64 {
	n, _ := cos.ParsePercentOrBytes(c.CircuitBreakerLimit, heapBytes)
	return n
}
