package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/sparseann/seismic/cmn/xerrors"
	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/vector"
)

// Reader opens a (terms, postings) file pair and serves lazy per-term
// lookups (spec.md §4.7 "Loads term dictionary eagerly ... and posting
// bytes lazily"). A Reader is safe for concurrent use: concurrent Read
// calls for the same term are deduplicated by a singleflight.Group so a
// cache-miss stampede parses the term's cluster bytes exactly once.
type Reader struct {
	dict         map[dictKey]uint64
	postings     []byte
	postingsSize uint64
	unmapPostings func() error
	sf           singleflight.Group
}

// Open verifies both files' CRC footers, parses the terms dictionary
// eagerly, and memory-maps the postings blob for lazy reads. A footer
// mismatch or unsupported version fails with CorruptIndex (spec.md
// §4.7/§7).
func Open(termsPath, postingsPath string) (*Reader, error) {
	termsRaw, err := os.ReadFile(termsPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIoError, "codec.Open", err)
	}
	if len(termsRaw) < 12 {
		return nil, errCorrupt("codec.Open", "terms file too short")
	}
	directoryOffset, err := readUint64LE(termsRaw, len(termsRaw)-12)
	if err != nil {
		return nil, errCorrupt("codec.Open", "terms file truncated trailer")
	}
	storedCRC := binary.LittleEndian.Uint32(termsRaw[len(termsRaw)-4:])
	if directoryOffset > uint64(len(termsRaw)-12) {
		return nil, errCorrupt("codec.Open", "terms directory offset out of range")
	}
	directory := termsRaw[:directoryOffset]
	if crc32.ChecksumIEEE(directory) != storedCRC {
		return nil, errCorrupt("codec.Open", "terms footer checksum mismatch")
	}

	dict, err := parseTermsDirectory(directory)
	if err != nil {
		return nil, err
	}

	postingsRaw, unmap, err := mmapFile(postingsPath)
	if err != nil {
		return nil, err
	}
	if len(postingsRaw) > 0 {
		if len(postingsRaw) < 12 {
			unmap()
			return nil, errCorrupt("codec.Open", "postings file too short")
		}
		size, err := readUint64LE(postingsRaw, len(postingsRaw)-12)
		if err != nil || size > uint64(len(postingsRaw)-12) {
			unmap()
			return nil, errCorrupt("codec.Open", "postings trailer truncated")
		}
		storedCRC := binary.LittleEndian.Uint32(postingsRaw[len(postingsRaw)-4:])
		if crc32.ChecksumIEEE(postingsRaw[:size]) != storedCRC {
			unmap()
			return nil, errCorrupt("codec.Open", "postings footer checksum mismatch")
		}
	}

	return &Reader{
		dict:          dict,
		postings:      postingsRaw,
		postingsSize:  uint64(len(postingsRaw)),
		unmapPostings: unmap,
	}, nil
}

func parseTermsDirectory(buf []byte) (map[dictKey]uint64, error) {
	off := 0
	if len(buf) < 4 {
		return nil, errCorrupt("codec.parseTermsDirectory", "missing magic")
	}
	gotMagic := binary.LittleEndian.Uint32(buf[off : off+4])
	if gotMagic != magic {
		return nil, errCorrupt("codec.parseTermsDirectory", "bad magic")
	}
	off += 4

	nulAt := bytes.IndexByte(buf[off:], 0)
	if nulAt < 0 {
		return nil, errCorrupt("codec.parseTermsDirectory", "missing codec name terminator")
	}
	if string(buf[off:off+nulAt]) != codecName {
		return nil, errCorrupt("codec.parseTermsDirectory", "codec name mismatch")
	}
	off += nulAt + 1

	if off+4 > len(buf) {
		return nil, errCorrupt("codec.parseTermsDirectory", "missing version")
	}
	gotVersion := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	if gotVersion != version {
		return nil, errUnsupportedVersion("codec.parseTermsDirectory")
	}

	dict := make(map[dictKey]uint64, 1024)
	for off < len(buf) {
		fieldNumber, next, err := readVInt(buf, off)
		if err != nil {
			return nil, err
		}
		off = next
		numTerms, next, err := readVLong(buf, off)
		if err != nil {
			return nil, err
		}
		off = next
		for i := uint64(0); i < numTerms; i++ {
			termLen, next, err := readVInt(buf, off)
			if err != nil {
				return nil, err
			}
			off = next
			if off+int(termLen) > len(buf) {
				return nil, errTruncated
			}
			term := string(buf[off : off+int(termLen)])
			off += int(termLen)
			fileOffset, next, err := readVLong(buf, off)
			if err != nil {
				return nil, err
			}
			off = next
			dict[dictKey{fieldNumber, term}] = fileOffset
		}
	}
	return dict, nil
}

// Read decodes the Clusters for (fieldNumber, term), parsing from the
// memory-mapped postings blob at the term's recorded file_offset. A term
// absent from the dictionary is a SoftMiss (ok=false), not an error.
func (r *Reader) Read(fieldNumber uint32, term string) (posting.Clusters, bool, error) {
	key := dictKey{fieldNumber, term}
	offset, ok := r.dict[key]
	if !ok {
		return nil, false, nil
	}

	v, err, _ := r.sf.Do(sfKey(fieldNumber, term), func() (any, error) {
		return decodeClusters(r.postings, int(offset))
	})
	if err != nil {
		return nil, false, err
	}
	return v.(posting.Clusters), true, nil
}

func sfKey(fieldNumber uint32, term string) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], fieldNumber)
	return string(b[:]) + term
}

func decodeClusters(buf []byte, off int) (posting.Clusters, error) {
	clusterCount, off, err := readVLong(buf, off)
	if err != nil {
		return nil, err
	}
	clusters := make(posting.Clusters, 0, clusterCount)
	for i := uint64(0); i < clusterCount; i++ {
		memberCount, next, err := readVLong(buf, off)
		if err != nil {
			return nil, err
		}
		off = next

		members := make([]posting.Member, 0, memberCount)
		for j := uint64(0); j < memberCount; j++ {
			docID, next, err := readVInt(buf, off)
			if err != nil {
				return nil, err
			}
			off = next
			if off >= len(buf) {
				return nil, errTruncated
			}
			weight := buf[off]
			off++
			members = append(members, posting.Member{DocID: docID, Weight: weight})
		}

		if off >= len(buf) {
			return nil, errTruncated
		}
		shouldNotSkip := buf[off] != 0
		off++

		summaryLen, next, err := readVLong(buf, off)
		if err != nil {
			return nil, err
		}
		off = next

		items := make([]vector.Item, 0, summaryLen)
		for j := uint64(0); j < summaryLen; j++ {
			idx, next, err := readVInt(buf, off)
			if err != nil {
				return nil, err
			}
			off = next
			if off >= len(buf) {
				return nil, errTruncated
			}
			w := buf[off]
			off++
			items = append(items, vector.Item{Idx: idx, Weight: w})
		}

		clusters = append(clusters, posting.Cluster{
			Summary:       vector.FromSorted(items),
			Members:       members,
			ShouldNotSkip: shouldNotSkip,
		})
	}
	return clusters, nil
}

// Close releases the memory-mapped postings blob.
func (r *Reader) Close() error {
	if r.unmapPostings == nil {
		return nil
	}
	return r.unmapPostings()
}

// KnownTerms returns every term recorded in the dictionary for
// fieldNumber, in no particular order. Used by operator tooling that
// needs to enumerate terms rather than look one up directly.
func (r *Reader) KnownTerms(fieldNumber uint32) []string {
	var out []string
	for k := range r.dict {
		if k.field == fieldNumber {
			out = append(out, k.term)
		}
	}
	return out
}
