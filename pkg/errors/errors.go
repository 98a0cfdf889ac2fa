package errors

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can tell bad input apart from a
// corrupt file or an unusable WAL.
type Kind int

const (
	KindValidation Kind = iota // bad input, rejected before any I/O
	KindCorruption             // malformed SSTable header, index or record
	KindRecovery               // malformed WAL checkpoint or log line
	KindCheckpoint             // checkpoint aborted, old state left intact
	KindCompaction             // compaction aborted, old SSTables left intact
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCorruption:
		return "corruption"
	case KindRecovery:
		return "recovery"
	case KindCheckpoint:
		return "checkpoint"
	case KindCompaction:
		return "compaction"
	}
	return "unknown"
}

// Error is the engine's error type. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as an engine error of the given kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an engine error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or anything it wraps) is an engine error of the
// given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
