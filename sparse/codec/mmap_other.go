//go:build !unix

package codec

import (
	"os"

	"github.com/sparseann/seismic/cmn/xerrors"
)

// mmapFile falls back to a full read on non-unix platforms (spec.md
// §4.7 allows "memory-mapped or streamed"); golang.org/x/sys/unix has no
// mmap surface there.
func mmapFile(path string) (data []byte, closer func() error, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindIoError, "codec.mmapFile", err)
	}
	return b, func() error { return nil }, nil
}
