// Package atomic provides boxed atomic scalar types matching the call
// sites a CAS-heavy, many-readers/single-writer core reaches for
// (Load/Store/Add/Dec/CAS), over the standard library's sync/atomic.
package atomic

import "sync/atomic"

// Int64 is an atomically-accessed int64.
type Int64 struct{ v int64 }

func (i *Int64) Load() int64        { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)      { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(n int64) int64  { return atomic.AddInt64(&i.v, n) }
func (i *Int64) Dec() int64         { return atomic.AddInt64(&i.v, -1) }
func (i *Int64) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, new)
}

// Int32 is an atomically-accessed int32.
type Int32 struct{ v int32 }

func (i *Int32) Load() int32       { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(n int32)     { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Add(n int32) int32 { return atomic.AddInt32(&i.v, n) }
func (i *Int32) Dec() int32        { return atomic.AddInt32(&i.v, -1) }
func (i *Int32) CAS(old, new int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, new)
}

// Bool is an atomically-accessed bool.
type Bool struct{ v int32 }

func (b *Bool) Load() bool   { return atomic.LoadInt32(&b.v) != 0 }
func (b *Bool) Store(v bool) { atomic.StoreInt32(&b.v, boolToInt32(v)) }

// CAS performs compare-and-swap, returning whether it succeeded.
func (b *Bool) CAS(old, new bool) bool {
	return atomic.CompareAndSwapInt32(&b.v, boolToInt32(old), boolToInt32(new))
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
