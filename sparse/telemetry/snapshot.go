package telemetry

import "github.com/tinylib/msgp/msgp"

// StatsSnapshot is the compact point-in-time view of a Recorder's
// counters, encoded with msgp for cheap host-side export (spec.md §1
// scopes the host's own wire protocol out, so this is just a byte
// producer, not a transport).
type StatsSnapshot struct {
	CacheHits      map[string]float64 `msg:"cache_hits"`
	CacheMisses    map[string]float64 `msg:"cache_misses"`
	Evictions      map[string]float64 `msg:"evictions"`
	ReserveRefused float64            `msg:"reserve_refused"`
}

// MarshalMsg appends the MessagePack encoding of z to b, written by hand
// in the shape tinylib/msgp's codegen produces for a struct of this
// field layout (map header, then one field-name/value pair per field).
func (z *StatsSnapshot) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.AppendMapHeader(b, 4)
	o = msgp.AppendString(o, "cache_hits")
	o = appendFloatMap(o, z.CacheHits)
	o = msgp.AppendString(o, "cache_misses")
	o = appendFloatMap(o, z.CacheMisses)
	o = msgp.AppendString(o, "evictions")
	o = appendFloatMap(o, z.Evictions)
	o = msgp.AppendString(o, "reserve_refused")
	o = msgp.AppendFloat64(o, z.ReserveRefused)
	return o, nil
}

func appendFloatMap(b []byte, m map[string]float64) []byte {
	o := msgp.AppendMapHeader(b, uint32(len(m)))
	for k, v := range m {
		o = msgp.AppendString(o, k)
		o = msgp.AppendFloat64(o, v)
	}
	return o
}

// UnmarshalMsg decodes z from bts, returning unconsumed trailing bytes.
func (z *StatsSnapshot) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var fieldCount uint32
	fieldCount, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for i := uint32(0); i < fieldCount; i++ {
		var name string
		name, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, err
		}
		switch name {
		case "cache_hits":
			z.CacheHits, bts, err = readFloatMap(bts)
		case "cache_misses":
			z.CacheMisses, bts, err = readFloatMap(bts)
		case "evictions":
			z.Evictions, bts, err = readFloatMap(bts)
		case "reserve_refused":
			z.ReserveRefused, bts, err = msgp.ReadFloat64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, err
		}
	}
	return bts, nil
}

func readFloatMap(bts []byte) (map[string]float64, []byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	m := make(map[string]float64, count)
	for i := uint32(0); i < count; i++ {
		var k string
		var v float64
		k, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return nil, bts, err
		}
		v, bts, err = msgp.ReadFloat64Bytes(bts)
		if err != nil {
			return nil, bts, err
		}
		m[k] = v
	}
	return m, bts, nil
}

// Snapshot reads the current counter values into a StatsSnapshot. Gauge
// reads against Prometheus collectors go through the collector's own
// Write(*dto.Metric) path; Recorder keeps a parallel plain-value mirror
// here rather than reflecting Prometheus internals, since the host only
// needs the numbers, not a full metric family.
func (r *Recorder) Snapshot() StatsSnapshot {
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	return StatsSnapshot{
		CacheHits:      cloneMap(r.hitsMirror),
		CacheMisses:    cloneMap(r.missesMirror),
		Evictions:      cloneMap(r.evictionsMirror),
		ReserveRefused: r.refusedMirror,
	}
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
