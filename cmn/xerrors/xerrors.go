// Package xerrors defines the core's error taxonomy: a small, closed set
// of kinds (not types) that callers switch on, each wrapping an optional
// cause via github.com/pkg/errors so codec/IO failures keep a stack trace
// for logs.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy from the design: CorruptIndex and
// IoError are surfaced to the host; MemoryBudget is recovered locally
// (build skips the entry, query proceeds uncached); InvalidArgument is
// rejected synchronously at the API boundary. SoftMiss is deliberately
// not a Kind here — callers model it as (T, bool), never as an error.
type Kind int

const (
	KindCorruptIndex Kind = iota
	KindMemoryBudget
	KindInvalidArgument
	KindIoError
)

func (k Kind) String() string {
	switch k {
	case KindCorruptIndex:
		return "CorruptIndex"
	case KindMemoryBudget:
		return "MemoryBudget"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the core's error value: a Kind plus a human message plus an
// optional wrapped cause.
type Error struct {
	Kind  Kind
	Op    string
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, msg: msg}
}

// Wrap builds a Kind error wrapping cause, attaching a stack via
// github.com/pkg/errors so logs retain where the failure originated.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, msg: cause.Error(), cause: errors.WithStack(cause)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Cause unwraps to the deepest non-xerrors cause, mirroring
// github.com/pkg/errors.Cause for callers that want the root fault.
func Cause(err error) error {
	for {
		err = errors.Cause(err)
		e, ok := err.(*Error)
		if !ok || e.cause == nil {
			return err
		}
		err = e.cause
	}
}
