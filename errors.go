// The structured error taxonomy itself lives in internal/corestate so that
// internal/orchestrator can construct and classify errors without importing
// this package back; the declarations below re-export it as psnnode's public
// API, the same way capabilities.go re-exports the capability interfaces.
package psnnode

import "github.com/henryshunt/psn-node-go/internal/corestate"

type (
	// Error is a structured error carrying the operation that failed, its
	// kind, and an optional wrapped cause.
	Error = corestate.Error

	// ErrorCode partitions into the three kinds the error-handling design
	// distinguishes (spec.md §7): Transient, Semantic, Terminal.
	ErrorCode = corestate.ErrorCode

	// Kind classifies an ErrorCode into one of the three error-handling
	// kinds.
	Kind = corestate.Kind
)

const (
	KindTransient = corestate.KindTransient
	KindSemantic  = corestate.KindSemantic
	KindTerminal  = corestate.KindTerminal

	ErrCodeNetworkUnreachable = corestate.ErrCodeNetworkUnreachable
	ErrCodeServerUnreachable  = corestate.ErrCodeServerUnreachable
	ErrCodeSubscribeTimeout   = corestate.ErrCodeSubscribeTimeout
	ErrCodeRequestTimeout     = corestate.ErrCodeRequestTimeout
	ErrCodeMalformedResponse  = corestate.ErrCodeMalformedResponse

	ErrCodeNoSession = corestate.ErrCodeNoSession

	ErrCodeClockInvalid          = corestate.ErrCodeClockInvalid
	ErrCodeConfigInvalid         = corestate.ErrCodeConfigInvalid
	ErrCodeConfigUnreadable      = corestate.ErrCodeConfigUnreadable
	ErrCodeMACUnavailable        = corestate.ErrCodeMACUnavailable
	ErrCodeInstructionsExhausted = corestate.ErrCodeInstructionsExhausted

	ErrCodeTransportUnrecoverable = corestate.ErrCodeTransportUnrecoverable
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return corestate.NewError(op, code, msg)
}

// WrapError wraps an existing error with psnnode context under the given
// code, even when inner is itself a structured *Error; inner stays
// reachable through Unwrap.
func WrapError(op string, code ErrorCode, inner error) *Error {
	return corestate.WrapError(op, code, inner)
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return corestate.IsCode(err, code)
}

// IsKind reports whether err is (or wraps) an *Error whose code belongs to
// the given Kind.
func IsKind(err error, kind Kind) bool {
	return corestate.IsKind(err, kind)
}
