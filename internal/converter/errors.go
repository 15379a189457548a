package converter

import (
	"errors"
	"fmt"
)

// Sentinel errors for conversion failures. Use errors.Is against these.
var (
	// ErrUnknownFormat is returned when no command template is configured for a format.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrConversionFailed is returned when the converter could not produce an
	// output file: it failed to start, exited non-zero, or timed out.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrInvalidTemplate is returned when a command template cannot be turned
	// into an argument vector.
	ErrInvalidTemplate = errors.New("invalid command template")
)

// ErrorKind classifies a ConversionError.
type ErrorKind string

// Conversion error kinds
const (
	KindUnknownFormat  ErrorKind = "unknown_format"
	KindInvalidCommand ErrorKind = "invalid_command"
	KindWorkspace      ErrorKind = "workspace"
	KindLaunchFailed   ErrorKind = "launch_failed"
	KindNonZeroExit    ErrorKind = "non_zero_exit"
	KindTimedOut       ErrorKind = "timed_out"
)

// ConversionError describes a failed invocation. Stdout and Stderr hold the
// converter's output for operator diagnostics; they must not be exposed to
// API clients.
type ConversionError struct {
	Kind     ErrorKind
	Format   string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	switch e.Kind {
	case KindUnknownFormat:
		return fmt.Sprintf("no conversion command for format %q", e.Format)
	case KindNonZeroExit:
		return fmt.Sprintf("conversion to %q exited with status %d", e.Format, e.ExitCode)
	}

	if e.Err != nil {
		return fmt.Sprintf("conversion to %q failed (%s): %v", e.Format, e.Kind, e.Err)
	}
	return fmt.Sprintf("conversion to %q failed (%s)", e.Format, e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *ConversionError) Is(target error) bool {
	switch target {
	case ErrUnknownFormat:
		return e.Kind == KindUnknownFormat
	case ErrConversionFailed:
		return e.Kind != KindUnknownFormat
	}
	return false
}
