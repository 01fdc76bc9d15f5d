package pagination

import (
	"errors"
	"fmt"
)

// ErrorKind classifies executor failures.
type ErrorKind string

const (
	// TransportFault means a fetch or action collaborator failed.
	TransportFault ErrorKind = "transport_fault"

	// PreconditionViolation means the executor was called with input it cannot act on.
	PreconditionViolation ErrorKind = "precondition_violation"

	// ExhaustionAnomaly means the total result set size changed mid-enumeration
	// and the DriftFail policy is active.
	ExhaustionAnomaly ErrorKind = "exhaustion_anomaly"
)

// Sentinel causes wrapped by *Error.
var (
	ErrEmptyResultSet  = errors.New("result set is empty")
	ErrNotEnumerated   = errors.New("result set was not enumerated")
	ErrCursorDone      = errors.New("cursor is done")
	ErrOffsetNotZero   = errors.New("statement offset must be 0")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrWindowPresent   = errors.New("action statement has limit or offset")
	ErrTotalChanged    = errors.New("total result set size changed")
)

// Error is returned by every executor operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pagination %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause, so collaborator errors stay visible to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" if err is not an executor error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newError(kind ErrorKind, op string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
