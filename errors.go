package vslq

import (
	"errors"
	"fmt"
)

// Code categorizes an Error (spec §7).
type Code string

const (
	// CodeDiagnostic marks a recoverable anomaly recorded against a
	// transaction (malformed payload, conflicting link, late record);
	// dispatch continues normally.
	CodeDiagnostic Code = "diagnostic"
	// CodeForced marks a transaction that was forced complete by the
	// incomplete-timeout or incomplete-bound backstop rather than by
	// seeing its own End record.
	CodeForced Code = "forced"
	// CodeFatal marks an error that stops Dispatch (a cursor error, a
	// ring chunk lost before promotion, a cancelled context, or a
	// callback-returned error that isn't ErrStop), and also New's
	// construction failures.
	CodeFatal Code = "fatal"
)

// Error is the structured error type returned by this package's
// exported operations.
type Error struct {
	Op    string // operation that failed, e.g. "Dispatch", "Flush"
	Vxid  uint64 // transaction involved, if any (0 if not applicable)
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Vxid != 0 {
		return fmt.Sprintf("vslq: %s: vxid=%d: %s", e.Op, e.Vxid, e.Msg)
	}
	return fmt.Sprintf("vslq: %s: %s", e.Op, e.Msg)
}

// Unwrap supports errors.Is/errors.As against Inner.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by Code: two *Error values with the
// same Code are considered equivalent regardless of their other
// fields.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

func newError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

func newVxidError(op string, vxid uint64, code Code, msg string) *Error {
	return &Error{Op: op, Vxid: vxid, Code: code, Msg: msg}
}

func wrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ve *Error
	if errors.As(inner, &ve) {
		return &Error{Op: op, Vxid: ve.Vxid, Code: ve.Code, Msg: ve.Msg, Inner: ve.Inner}
	}
	return &Error{Op: op, Code: CodeFatal, Msg: inner.Error(), Inner: inner}
}

// ErrStop is returned by a DispatchFunc to stop Dispatch early without
// it being treated as a failure: Dispatch returns nil once a callback
// returns ErrStop.
var ErrStop = errors.New("vslq: callback requested stop")

// IsCode reports whether err is (or wraps) an *Error with the given
// code.
func IsCode(err error, code Code) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}
