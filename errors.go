package rwfs

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure taxonomy from spec.md §7. It plays the
// role gdbx's ErrorCode plays for MDBX: a small closed set of kinds that
// callers can switch on via errors.As, rather than distinct error types
// per failure.
type ErrorKind int

const (
	// KindIO wraps a failure from the backing stream itself.
	KindIO ErrorKind = iota
	// KindDecode marks a truncated or malformed slice during decode.
	KindDecode
	// KindInvalidMagic marks a header or fragment-record magic mismatch.
	KindInvalidMagic
	// KindInvalidTable marks a fragment-table chunk that fails a
	// structural check (also reported as KindLengthExceedsCapacity for
	// the specific len>cap case).
	KindInvalidTable
	// KindLengthExceedsCapacity marks len > cap in a table chunk.
	KindLengthExceedsCapacity
	// KindNotFound marks open_fragment on an unknown fragment id.
	KindNotFound
	// KindMissingRootFragment marks a header whose root id has no
	// matching descriptor.
	KindMissingRootFragment
	// KindFailedToCreateTablePart marks an allocator or link-up failure
	// while growing the fragment table (§4.5).
	KindFailedToCreateTablePart
	// KindInvalidInput marks an out-of-bounds seek or an operation
	// rejected by a handle's state machine (§4.6, §9).
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindInvalidMagic:
		return "invalid magic"
	case KindInvalidTable:
		return "invalid fragment table"
	case KindLengthExceedsCapacity:
		return "length exceeds capacity"
	case KindNotFound:
		return "not found"
	case KindMissingRootFragment:
		return "missing root fragment"
	case KindFailedToCreateTablePart:
		return "failed to create new fragment table part"
	case KindInvalidInput:
		return "invalid input"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is the error type surfaced by this package for every kind except
// not-found, which is reported as *ErrNotFound. It carries a Kind for
// programmatic dispatch plus an optional wrapped cause, mirroring gdbx's
// *Error{Code, Message, Err}.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rwfs: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("rwfs: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an *Error with the kind's default message.
func newError(kind ErrorKind) *Error {
	return &Error{Kind: kind, Message: kind.String()}
}

// wrapError builds an *Error of the given kind wrapping cause, with an
// additional message for context.
func wrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

var (
	// ErrInvalidMagic is returned when a header or fragment-record magic
	// mismatches.
	ErrInvalidMagic = newError(KindInvalidMagic)
	// ErrInvalidTable is returned when a fragment-table chunk fails a
	// structural check.
	ErrInvalidTable = newError(KindInvalidTable)
	// ErrLengthExceedsCapacity is returned when a chunk's length exceeds
	// its capacity.
	ErrLengthExceedsCapacity = newError(KindLengthExceedsCapacity)
	// ErrMissingRootFragment is returned when the header's root id has
	// no matching descriptor.
	ErrMissingRootFragment = newError(KindMissingRootFragment)
	// ErrFailedToCreateTablePart is returned when growing the fragment
	// table fails.
	ErrFailedToCreateTablePart = newError(KindFailedToCreateTablePart)
	// ErrInvalidInput is returned for out-of-bounds seeks and operations
	// a handle's current state rejects.
	ErrInvalidInput = newError(KindInvalidInput)
)

// ErrNotFound reports that open_fragment was called with an id absent
// from the fragment table.
type ErrNotFound struct {
	ID uint64
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("rwfs: fragment %d not found", e.ID)
}

func (e *ErrNotFound) Is(target error) bool {
	_, ok := target.(*ErrNotFound)
	return ok
}

// IsNotFound reports whether err (or anything it wraps) is a not-found
// error for the given fragment id resolution.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// IsInvalidMagic reports whether err (or anything it wraps) is an
// invalid-magic error.
func IsInvalidMagic(err error) bool {
	return hasKind(err, KindInvalidMagic)
}

// IsInvalidInput reports whether err (or anything it wraps) is an
// invalid-input error (bad seek, rejected handle operation).
func IsInvalidInput(err error) bool {
	return hasKind(err, KindInvalidInput)
}

// IsDecodeError reports whether err (or anything it wraps) came from a
// truncated or malformed on-disk structure.
func IsDecodeError(err error) bool {
	return hasKind(err, KindDecode)
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
