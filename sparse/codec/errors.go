package codec

import "github.com/sparseann/seismic/cmn/xerrors"

var errTruncated = xerrors.New(xerrors.KindCorruptIndex, "codec", "truncated file")

const (
	magic      uint32 = 0x53534d43 // "SSMC"
	codecName         = "seismic-clustered-postings"
	version    uint32 = 1
)

func errCorrupt(op, msg string) error {
	return xerrors.New(xerrors.KindCorruptIndex, op, msg)
}

func errUnsupportedVersion(op string) error {
	return xerrors.New(xerrors.KindCorruptIndex, op, "unsupported codec version")
}
