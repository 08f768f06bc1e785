//go:build unix

package codec

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sparseann/seismic/cmn/xerrors"
)

// mmapFile memory-maps path read-only for the lifetime of the returned
// closer, matching spec.md §4.7 ("the posting blob is memory-mapped or
// streamed"). Grounded on ip2region's Maker, which mmaps its binary
// index file for lazy, page-cached random access instead of reading it
// fully into the heap.
func mmapFile(path string) (data []byte, closer func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindIoError, "codec.mmapFile", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindIoError, "codec.mmapFile", err)
	}
	if st.Size() == 0 {
		return nil, func() error { return nil }, nil
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindIoError, "codec.mmapFile", err)
	}
	return mapped, func() error { return unix.Munmap(mapped) }, nil
}
