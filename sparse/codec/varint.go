// Package codec implements the on-disk binary layout for clustered
// postings (C7, spec.md §4.7): a terms dictionary file and a postings
// blob file per (segment, field) suffix.
//
// Grounded on golucene's BlockTreeTermsReader/Writer (vint/vlong field
// encoding, footer-checksummed trailers) and ip2region's Maker (two-phase
// write: data blob first, then an index/directory section that points
// into it by file offset).
package codec

import "encoding/binary"

// writeVInt appends x as a variable-length unsigned integer (7 bits per
// byte, high bit set on all but the last byte), the same encoding
// Lucene-family codecs call writeVInt/writeVLong.
func writeVInt(buf []byte, x uint32) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

func writeVLong(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// readVInt reads a vint starting at off, returning the value and the
// offset of the next unread byte.
func readVInt(b []byte, off int) (uint32, int, error) {
	var x uint32
	var shift uint
	for {
		if off >= len(b) {
			return 0, off, errTruncated
		}
		c := b[off]
		off++
		x |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return x, off, nil
		}
		shift += 7
		if shift > 35 {
			return 0, off, errTruncated
		}
	}
}

func readVLong(b []byte, off int) (uint64, int, error) {
	var x uint64
	var shift uint
	for {
		if off >= len(b) {
			return 0, off, errTruncated
		}
		c := b[off]
		off++
		x |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return x, off, nil
		}
		shift += 7
		if shift > 70 {
			return 0, off, errTruncated
		}
	}
}

func putUint64LE(buf []byte, x uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], x)
	return append(buf, tmp[:]...)
}

func readUint64LE(b []byte, off int) (uint64, error) {
	if off+8 > len(b) {
		return 0, errTruncated
	}
	return binary.LittleEndian.Uint64(b[off : off+8]), nil
}
