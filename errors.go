// Package microkernel implements a small preemptive real-time kernel as a
// single-process, goroutine-hosted simulation: threads, a fixed-priority
// preemptive scheduler, software timers, mutex/condition-variable
// primitives, a tick-driven allocator, a bounded UART reader, and an
// interactive shell engine. See the internal/sched, internal/timer,
// internal/alloc, internal/uart and internal/shell packages for the
// individual subsystems; this package is the boot/shutdown facade that
// wires them together.
package microkernel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies the failure reported by an Error, mirroring the
// small set of error categories the kernel's subsystems can produce.
type ErrorCode string

const (
	// Again indicates a transient condition the caller may retry (e.g. a
	// non-blocking push into a full circular buffer).
	Again ErrorCode = "again"
	// Inval indicates an invalid argument (out-of-range priority,
	// undersized stack, malformed command name).
	Inval ErrorCode = "invalid argument"
	// NoMem indicates heap or thread-table exhaustion.
	NoMem ErrorCode = "no memory"
	// Busy indicates a resource already claimed by another caller.
	Busy ErrorCode = "busy"
	// Exist indicates a name collision (e.g. registering a shell command
	// twice).
	Exist ErrorCode = "already exists"
	// Io indicates a failure in the underlying ioport.Port transport.
	Io ErrorCode = "i/o error"
)

// Error is a structured kernel error carrying the subsystem and
// operation that failed, following the teacher's Op/DevID/Queue
// context-carrying pattern with DevID/Queue replaced by Subsystem, the
// kernel's analogous unit of context.
type Error struct {
	Op        string    // operation that failed, e.g. "Spawn", "Alloc", "Register"
	Subsystem string    // subsystem that raised it, e.g. "sched", "alloc", "shell"
	Code      ErrorCode // high-level error category
	Msg       string    // human-readable message
	Inner     error     // wrapped error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Subsystem != "" {
		parts = append(parts, fmt.Sprintf("subsystem=%s", e.Subsystem))
	}
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("microkernel: %s (%s)", msg, strings.Join(parts, " "))
	}
	return fmt.Sprintf("microkernel: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparisons against another *Error by Code,
// so callers can do errors.Is(err, &microkernel.Error{Code: microkernel.Busy}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no wrapped cause.
func NewError(subsystem, op string, code ErrorCode, msg string) *Error {
	return &Error{Subsystem: subsystem, Op: op, Code: code, Msg: msg}
}

// WrapError wraps an existing error with kernel subsystem/op context and
// an error code. A nil inner error yields a nil *Error, mirroring the
// teacher's WrapError.
func WrapError(subsystem, op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ke, ok := inner.(*Error); ok {
		return &Error{Subsystem: subsystem, Op: op, Code: ke.Code, Msg: ke.Msg, Inner: ke}
	}
	return &Error{Subsystem: subsystem, Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}
