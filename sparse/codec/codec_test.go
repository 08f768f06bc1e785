package codec

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/sparseann/seismic/sparse/posting"
	"github.com/sparseann/seismic/sparse/vector"
)

func sampleClusters() map[string]posting.Clusters {
	vecOf := func(pairs ...vector.Item) vector.Vector { return vector.FromSorted(pairs) }
	return map[string]posting.Clusters{
		"alpha": {
			{
				Summary:       vecOf(vector.Item{Idx: 1, Weight: 200}, vector.Item{Idx: 5, Weight: 80}),
				Members:       []posting.Member{{DocID: 10, Weight: 200}, {DocID: 11, Weight: 90}},
				ShouldNotSkip: false,
			},
			{
				Summary:       vecOf(vector.Item{Idx: 2, Weight: 40}),
				Members:       []posting.Member{{DocID: 99, Weight: 40}},
				ShouldNotSkip: true,
			},
		},
		"beta": {
			{
				Summary: vecOf(),
				Members: []posting.Member{{DocID: 3, Weight: 1}, {DocID: 4, Weight: 1}},
			},
		},
	}
}

func writeFixture(t *testing.T) (termsPath, postingsPath string, src map[string]posting.Clusters) {
	t.Helper()
	dir := t.TempDir()
	termsPath = filepath.Join(dir, "0000_ann.st")
	postingsPath = filepath.Join(dir, "0000_ann.sp")
	src = sampleClusters()

	fields := []FieldTerms{{FieldNumber: 7, Terms: []string{"alpha", "beta"}}}
	err := Write(postingsPath, termsPath, fields, func(_ FieldTerms, term string) posting.Clusters {
		return src[term]
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return termsPath, postingsPath, src
}

func TestRoundTrip(t *testing.T) {
	termsPath, postingsPath, src := writeFixture(t)

	r, err := Open(termsPath, postingsPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for term, want := range src {
		got, ok, err := r.Read(7, term)
		if err != nil {
			t.Fatalf("Read(%q): %v", term, err)
		}
		if !ok {
			t.Fatalf("Read(%q): expected hit", term)
		}
		if !posting.EqualClusters(got, want) {
			t.Fatalf("Read(%q): round-trip mismatch\n got=%+v\nwant=%+v", term, got, want)
		}
	}
}

func TestReadMissingTermIsSoftMiss(t *testing.T) {
	termsPath, postingsPath, _ := writeFixture(t)
	r, err := Open(termsPath, postingsPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, ok, err := r.Read(7, "never-written"); ok || err != nil {
		t.Fatalf("expected soft miss, got ok=%v err=%v", ok, err)
	}
}

func TestOpenRejectsCorruptedTermsFooter(t *testing.T) {
	termsPath, postingsPath, _ := writeFixture(t)

	b, err := os.ReadFile(termsPath)
	if err != nil {
		t.Fatal(err)
	}
	b[len(b)-1] ^= 0xFF // flip a byte in the stored CRC
	if err := os.WriteFile(termsPath, b, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(termsPath, postingsPath); err == nil {
		t.Fatalf("expected CorruptIndex error on footer mismatch")
	}
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	termsPath, postingsPath, _ := writeFixture(t)

	b, err := os.ReadFile(termsPath)
	if err != nil {
		t.Fatal(err)
	}
	// version field sits right after magic(4) + codec name + NUL
	nulAt := 4
	for b[nulAt] != 0 {
		nulAt++
	}
	versionOff := nulAt + 1
	b[versionOff] = 99

	// recompute the directory CRC so only the version check fails, not
	// the footer-mismatch check.
	directoryOffset := len(b) - 12
	newCRC := crc32.ChecksumIEEE(b[:directoryOffset])
	binary.LittleEndian.PutUint32(b[len(b)-4:], newCRC)

	if err := os.WriteFile(termsPath, b, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(termsPath, postingsPath); err == nil {
		t.Fatalf("expected error on unsupported version")
	}
}
