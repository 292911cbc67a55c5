package corestate

import (
	"errors"
	"fmt"
)

// Error is a structured error carrying the operation that failed, its kind,
// and an optional wrapped cause.
type Error struct {
	Op    string // operation that failed, e.g. "ColdBoot", "ProtocolClient.GetInstructions"
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("psnnode: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("psnnode: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode partitions into the three kinds the error-handling design
// distinguishes (spec.md §7): Transient, Semantic, Terminal.
type ErrorCode string

const (
	// Transient — network unreachable, server unreachable, subscribe not
	// acknowledged in time, request timeout, malformed response. Handled by
	// state-machine fallback rather than surfaced to an operator.
	ErrCodeNetworkUnreachable ErrorCode = "network unreachable"
	ErrCodeServerUnreachable  ErrorCode = "server unreachable"
	ErrCodeSubscribeTimeout   ErrorCode = "subscribe not acknowledged"
	ErrCodeRequestTimeout     ErrorCode = "request timeout"
	ErrCodeMalformedResponse  ErrorCode = "malformed response"

	// Semantic — the server explicitly reports no active session. The node
	// terminates permanently.
	ErrCodeNoSession ErrorCode = "no session"

	// Terminal environment — RTC invalid, configuration invalid, ConfigStore
	// unreadable, MAC unavailable, instructions retries exhausted. Node
	// sleeps permanently; only a manual reset recovers.
	ErrCodeClockInvalid          ErrorCode = "clock invalid"
	ErrCodeConfigInvalid         ErrorCode = "configuration invalid"
	ErrCodeConfigUnreadable      ErrorCode = "configuration unreadable"
	ErrCodeMACUnavailable        ErrorCode = "mac address unavailable"
	ErrCodeInstructionsExhausted ErrorCode = "instructions retries exhausted"

	// Unrecoverable transport — reusing a transport/protocol client after a
	// previous failed connect. Policy is device reset, not in-cycle retry.
	ErrCodeTransportUnrecoverable ErrorCode = "transport not safely reusable"
)

// Kind classifies an ErrorCode into one of the three error-handling kinds.
type Kind int

const (
	KindTransient Kind = iota
	KindSemantic
	KindTerminal
)

// Kind reports which of the three error-handling kinds a code belongs to.
func (c ErrorCode) Kind() Kind {
	switch c {
	case ErrCodeNoSession:
		return KindSemantic
	case ErrCodeClockInvalid, ErrCodeConfigInvalid, ErrCodeConfigUnreadable,
		ErrCodeMACUnavailable, ErrCodeInstructionsExhausted,
		ErrCodeTransportUnrecoverable:
		return KindTerminal
	default:
		return KindTransient
	}
}

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps an existing error with psnnode context under the given
// code, even when inner is itself a structured *Error; inner stays
// reachable through Unwrap.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsKind reports whether err is (or wraps) an *Error whose code belongs to
// the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code.Kind() == kind
	}
	return false
}
