// Package cli maps command failures to process exit codes and renders them
// for humans or scripts.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitInternal = 1
	ExitUsage    = 2
	ExitConfig   = 3
	ExitTarget   = 4
	ExitNetwork  = 5
)

// CLIError is a command failure with an exit code and category.
type CLIError struct {
	Code    int    `json:"exit_code"`
	Type    string `json:"error"`
	Message string `json:"message"`
	Recover bool   `json:"recoverable"`

	cause error
}

func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *CLIError) Unwrap() error { return e.cause }

// NewUsageError creates an error for invalid arguments.
func NewUsageError(msg string) *CLIError {
	return &CLIError{Code: ExitUsage, Type: "invalid_args", Message: msg}
}

// NewConfigError wraps a configuration failure.
func NewConfigError(err error) *CLIError {
	return wrap(ExitConfig, "config", err, false)
}

// NewTargetError wraps a failure to open or write the append target.
func NewTargetError(err error) *CLIError {
	return wrap(ExitTarget, "target", err, false)
}

// NewNetworkError wraps a listen or dial failure. These are worth retrying.
func NewNetworkError(err error) *CLIError {
	return wrap(ExitNetwork, "network", err, true)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *CLIError {
	return wrap(ExitInternal, "internal", err, false)
}

func wrap(code int, typ string, err error, recoverable bool) *CLIError {
	msg := typ + " failure"
	if err != nil {
		msg = err.Error()
	}
	return &CLIError{Code: code, Type: typ, Message: msg, Recover: recoverable, cause: err}
}

// ExitCode extracts the exit code from an error.
// Returns ExitInternal for errors that are not a CLIError, ExitOK for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *CLIError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ExitInternal
}

// FormatError writes err to w, as a JSON object in jsonMode and as
// "error: <message>" otherwise.
func FormatError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}

	if jsonMode {
		var ce *CLIError
		if !errors.As(err, &ce) {
			ce = NewInternalError(err)
		}
		data, _ := json.Marshal(ce)
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	_, _ = fmt.Fprintf(w, "error: %v\n", err)
}
