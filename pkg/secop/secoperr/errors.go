// Package secoperr implements the SECoP framework error taxonomy: the
// distinct, wire-nameable error kinds a module, accessible or dispatcher
// can raise, and the translation between Go errors and their SECoP wire
// representation.
package secoperr

import (
	"errors"
	"fmt"
)

// Kind is the stable, wire-visible name of a SECoP error class.
type Kind string

// Error kinds from spec.md §7. Names are sent on the wire verbatim inside
// error_<action> reply frames and must never change once assigned.
const (
	KindProtocolError         Kind = "ProtocolError"
	KindNoSuchModule          Kind = "NoSuchModule"
	KindNoSuchParameter       Kind = "NoSuchParameter"
	KindNoSuchCommand         Kind = "NoSuchCommand"
	KindReadOnly              Kind = "ReadOnly"
	KindBadValue              Kind = "BadValue"
	KindWrongType             Kind = "WrongType"
	KindRangeError            Kind = "RangeError"
	KindIsBusy                Kind = "IsBusy"
	KindIsError               Kind = "IsError"
	KindDisabled              Kind = "Disabled"
	KindCommandFailed         Kind = "CommandFailed"
	KindCommandRunning        Kind = "CommandRunning"
	KindCommunicationFailed   Kind = "CommunicationFailed"
	KindTimeout               Kind = "Timeout"
	KindHardwareError         Kind = "HardwareError"
	KindConfigError           Kind = "ConfigError"
	KindProgrammingError      Kind = "ProgrammingError"
	KindInternalError         Kind = "InternalError"
)

// Error is a framework error: a stable Kind plus a human-readable detail.
// It is the only error type the dispatcher is willing to put on the wire.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

// New creates a framework error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a framework error with a formatted detail message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Name returns the stable wire name of this error's kind.
func (e *Error) Name() string { return string(e.Kind) }

// WithCause attaches an underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Is lets errors.Is match two framework errors of the same kind, so
// sentinel-style comparisons (errors.Is(err, secoperr.New(KindBadValue, ""))
// work regardless of detail text.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// silent wraps an error to mark it as one that should be retried quietly:
// no log line, no client-visible error storm. Per spec.md §7, SilentError
// is a sentinel behavior rather than a distinct wire kind — it is never
// itself transmitted, because callers that see it simply decline to
// report.
type silent struct {
	err error
}

func (s *silent) Error() string { return s.err.Error() }
func (s *silent) Unwrap() error { return s.err }

// Silence wraps err so IsSilent reports true for it. A nil err stays nil.
func Silence(err error) error {
	if err == nil {
		return nil
	}
	return &silent{err: err}
}

// IsSilent reports whether err (or anything it wraps) was marked via Silence.
func IsSilent(err error) bool {
	var s *silent
	return errors.As(err, &s)
}

// AsFramework converts any error into a *Error. Errors already of that
// type pass through unchanged; anything else is wrapped as InternalError,
// matching spec.md §4.4 step 2 and §7's "any non-framework exception is
// wrapped as InternalError".
func AsFramework(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindInternalError, Detail: err.Error(), Cause: err}
}

// SameMessage reports whether two errors have identical canonical string
// forms — used by announceUpdate's error de-duplication (spec.md §4.4
// step 1, §8 invariant "repeated error with identical message does not
// produce a second update frame").
func SameMessage(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}

// Startup-only errors: ConfigError and ProgrammingError abort node startup
// and must never reach the wire (spec.md §7). IsStartupFatal reports
// whether err is one of these.
func IsStartupFatal(err error) bool {
	fe := AsFramework(err)
	return fe.Kind == KindConfigError || fe.Kind == KindProgrammingError
}
