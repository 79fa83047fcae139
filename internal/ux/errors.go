package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds contextual suggestions to errors that carry none.
// Coded errors already bring their own and are returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "operation not permitted") || strings.Contains(errMsg, "permission denied") {
		if strings.Contains(errMsg, "chroot") || strings.Contains(errMsg, "fork/exec") {
			return NewErrorWithSuggestion(err,
				"Replaying in a chroot needs root: run 'sudo reprobox sandbox run ...'")
		}
		if strings.Contains(errMsg, "chown") || strings.Contains(errMsg, "owner") {
			return NewErrorWithSuggestion(err,
				"Restoring file owners needs root; use --dont-preserve-owner to keep your own")
		}
		return NewErrorWithSuggestion(err,
			"Check file permissions and ensure you have access to the required files/directories")
	}

	if strings.Contains(errMsg, "no such file or directory") {
		if strings.Contains(errMsg, DefaultTraceDir) {
			return NewErrorWithSuggestion(err,
				"Trace the experiment first, or point --dir at its trace directory")
		}
		if strings.Contains(errMsg, DefaultPackExt) {
			return NewErrorWithSuggestion(err,
				"Check the pack path, or fetch it with 'reprobox pull <reference> <pack>'")
		}
	}

	if strings.Contains(errMsg, "gzip: invalid header") || strings.Contains(errMsg, "archive/tar") {
		return NewErrorWithSuggestion(err,
			"The file is not a reprobox pack; check that the download completed")
	}

	if strings.Contains(errMsg, "no space left on device") {
		return NewErrorWithSuggestion(err,
			"Free some disk space or set up the target on another filesystem")
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host") {
		return NewErrorWithSuggestion(err,
			"Check your network connection and firewall settings")
	}

	return err
}
