// Package mono provides monotonic-clock helpers so latency and idle-time
// computations are immune to wall-clock adjustments.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds since an arbitrary, process-local epoch.
// Only differences between two NanoTime() calls are meaningful.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the monotonic duration elapsed since a prior NanoTime().
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
