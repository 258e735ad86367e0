// Package taskerror provides the structured error taxonomy that every
// workflow step constructs on failure. It preserves the failing step and a
// cause chain while still implementing the standard error interface, so
// errors.Is/As keep working across retries and wrapped upstream failures.
package taskerror

import (
	"errors"
	"fmt"
)

// Kind classifies a StepError for scheduling and reporting purposes.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUpstreamTransient Kind = "upstream_transient"
	KindUpstreamTerminal  Kind = "upstream_terminal"
	KindTimeout           Kind = "timeout"
	KindCancellation      Kind = "cancellation"
	KindInternal          Kind = "internal"
)

// StepError is a structured workflow failure. Step names the workflow step
// that raised it; Recoverable indicates whether the same step may succeed
// on a future attempt given no code change (transient upstream conditions,
// not validation or programming errors).
type StepError struct {
	Step        string
	Kind        Kind
	Message     string
	Recoverable bool
	Cause       error
}

// New constructs a StepError with the given kind, step, and message.
func New(kind Kind, step, message string) *StepError {
	if message == "" {
		message = string(kind)
	}
	return &StepError{Step: step, Kind: kind, Message: message, Recoverable: kind == KindUpstreamTransient}
}

// Wrap constructs a StepError that wraps an underlying cause.
func Wrap(kind Kind, step, message string, cause error) *StepError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &StepError{Step: step, Kind: kind, Message: message, Recoverable: kind == KindUpstreamTransient, Cause: cause}
}

// Validation reports a request/argument validation failure. Never recoverable.
func Validation(step, format string, args ...any) *StepError {
	return New(KindValidation, step, fmt.Sprintf(format, args...))
}

// UpstreamTransient reports a recoverable upstream failure (5xx, 429, timeout on retrySafe ops).
func UpstreamTransient(step string, cause error) *StepError {
	return Wrap(KindUpstreamTransient, step, "", cause)
}

// UpstreamTerminal reports a non-recoverable upstream failure (4xx other than 429, malformed response).
func UpstreamTerminal(step string, cause error) *StepError {
	return Wrap(KindUpstreamTerminal, step, "", cause)
}

// Timeout reports a step that exceeded its allotted time budget.
func Timeout(step, message string) *StepError {
	return New(KindTimeout, step, message)
}

// Cancelled reports a step that observed context cancellation.
func Cancelled(step string) *StepError {
	return New(KindCancellation, step, "cancelled")
}

// Internal reports a programming or invariant-violation error.
func Internal(step string, cause error) *StepError {
	return Wrap(KindInternal, step, "", cause)
}

// FromError converts an arbitrary error into a *StepError chain, tagging it
// as internal if it is not already a StepError.
func FromError(step string, err error) *StepError {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return Internal(step, err)
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Step == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Record is the serializable projection of a StepError attached to a Task.
type Record struct {
	Step        string `json:"step"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// AsRecord converts an arbitrary workflow error into a Task-attachable Record.
// Errors that are not a *StepError are treated as internal and unrecoverable.
func AsRecord(step string, err error) *Record {
	if err == nil {
		return nil
	}
	se := FromError(step, err)
	return &Record{Step: se.Step, Message: se.Error(), Recoverable: se.Recoverable}
}
