package cli

import (
	"errors"
	"fmt"

	"github.com/AntonStoeckl/library-circulation-go/circulation/observable"
)

// Exit codes of circulationctl.
const (
	ExitSuccess      = 0
	ExitRejected     = 1 // a business rule refused the operation
	ExitCommandError = 2 // invalid input, configuration, or a storage failure
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitCommandError if err is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitCommandError
}

// operationFailed maps a workflow error to its exit code.
func operationFailed(operation string, err error) error {
	if observable.ClassifyOutcome(err) == observable.StatusRejected {
		return WrapExitError(ExitRejected, operation+" rejected", err)
	}

	return WrapExitError(ExitCommandError, operation+" failed", err)
}
