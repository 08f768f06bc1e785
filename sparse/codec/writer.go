package codec

import (
	"hash/crc32"
	"os"

	"github.com/sparseann/seismic/cmn/xerrors"
	"github.com/sparseann/seismic/sparse/posting"
)

// FieldTerms is one field's ordered term set to write, keyed by field
// number (spec.md §4.7 "For each field: field_number, num_terms").
type FieldTerms struct {
	FieldNumber uint32
	Terms       []string // write order; lookups are by exact term bytes
}

type dictKey struct {
	field uint32
	term  string
}

// Write emits the postings blob then the terms dictionary for one
// segment/field suffix, following the two-phase contract in spec.md §4.7
// ("first emit postings blob and record offsets; then emit terms
// dictionary"). postingsPath and termsPath correspond to the host's
// `<segment>_<suffix>.sp` and `<segment>_<suffix>.st` files.
//
// clustersOf is called once per term in write order to fetch that term's
// Clusters. Both output files are written atomically: on any failure the
// partially-written files are removed (spec.md §4.7 "atomic close").
func Write(postingsPath, termsPath string, fields []FieldTerms, clustersOf func(field FieldTerms, term string) posting.Clusters) (err error) {
	offsets := make(map[dictKey]uint64, 1024)

	if err = writePostings(postingsPath, fields, clustersOf, offsets); err != nil {
		os.Remove(postingsPath)
		return err
	}
	if err = writeTerms(termsPath, fields, offsets); err != nil {
		os.Remove(postingsPath)
		os.Remove(termsPath)
		return err
	}
	return nil
}

func writePostings(path string, fields []FieldTerms, clustersOf func(FieldTerms, string) posting.Clusters, offsets map[dictKey]uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writePostings", err)
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(path)
		}
	}()

	crc := crc32.NewIEEE()
	var buf []byte
	var offset uint64
	for _, fld := range fields {
		for _, term := range fld.Terms {
			clusters := clustersOf(fld, term)
			buf = buf[:0]
			buf = encodeClusters(buf, clusters)
			offsets[dictKey{fld.FieldNumber, term}] = offset
			n, werr := f.Write(buf)
			if werr != nil {
				return xerrors.Wrap(xerrors.KindIoError, "codec.writePostings", werr)
			}
			crc.Write(buf)
			offset += uint64(n)
		}
	}

	var trailer []byte
	trailer = putUint64LE(trailer, offset)
	trailer = putUint32LE4(trailer, crc.Sum32())
	if _, err := f.Write(trailer); err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writePostings", err)
	}
	if err := f.Sync(); err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writePostings", err)
	}
	ok = true
	return nil
}

func encodeClusters(buf []byte, clusters posting.Clusters) []byte {
	buf = writeVLong(buf, uint64(len(clusters)))
	for _, c := range clusters {
		buf = writeVLong(buf, uint64(len(c.Members)))
		for _, m := range c.Members {
			buf = writeVInt(buf, m.DocID)
			buf = append(buf, m.Weight)
		}
		if c.ShouldNotSkip {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		items := c.Summary.Items()
		buf = writeVLong(buf, uint64(len(items)))
		for _, it := range items {
			buf = writeVInt(buf, it.Idx)
			buf = append(buf, it.Weight)
		}
	}
	return buf
}

func writeTerms(path string, fields []FieldTerms, offsets map[dictKey]uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writeTerms", err)
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(path)
		}
	}()

	var buf []byte
	buf = putUint32LE4(buf, magic)
	buf = append(buf, []byte(codecName)...)
	buf = append(buf, 0) // NUL-terminate the codec-name run so the reader knows where it ends
	buf = putUint32LE4(buf, version)

	for _, fld := range fields {
		buf = writeVInt(buf, fld.FieldNumber)
		buf = writeVLong(buf, uint64(len(fld.Terms)))
		for _, term := range fld.Terms {
			tb := []byte(term)
			buf = writeVInt(buf, uint32(len(tb)))
			buf = append(buf, tb...)
			buf = writeVLong(buf, offsets[dictKey{fld.FieldNumber, term}])
		}
	}

	directoryOffset := uint64(len(buf))
	crc := crc32.ChecksumIEEE(buf)

	if _, err := f.Write(buf); err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writeTerms", err)
	}
	var trailer []byte
	trailer = putUint64LE(trailer, directoryOffset)
	trailer = putUint32LE4(trailer, crc)
	if _, err := f.Write(trailer); err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writeTerms", err)
	}
	if err := f.Sync(); err != nil {
		return xerrors.Wrap(xerrors.KindIoError, "codec.writeTerms", err)
	}
	ok = true
	return nil
}

func putUint32LE4(buf []byte, x uint32) []byte {
	return append(buf, byte(x), byte(x>>8), byte(x>>16), byte(x>>24))
}
