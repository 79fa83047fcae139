package exitcode

import (
	"errors"
	"fmt"
	"os"
	"strings"

	boxerrors "github.com/felixgeelhaar/reprobox/internal/errors"
)

// Exit codes for consistent error handling across the CLI.
//
// Failures raised before any replayed process is spawned use the sysexits
// range (64-78). A replayed run's own status is passed through unchanged.
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// Usage indicates invalid command usage (bad flags, missing args, etc.)
	Usage = 64

	// Config indicates a missing, malformed or inconsistent configuration
	Config = 65

	// MissingInput indicates a file expected at pack time was absent
	MissingInput = 66

	// Compatibility indicates a pack that cannot be replayed on this host
	Compatibility = 69

	// Execution indicates the isolated process could not be started
	Execution = 71

	// ArchiveExists indicates the pack target was already present
	ArchiveExists = 73

	// ArchiveWrite indicates an I/O failure while reading or writing a pack
	ArchiveWrite = 74

	// Interrupted indicates the CLI itself was stopped by SIGINT
	Interrupted = 130
)

// StatusError carries the exit status of a replayed run so it can be
// returned through cobra and surfaced verbatim by main.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("replayed command exited with status %d", e.Code)
}

// FromSignal returns the shell convention status for a run killed by sig.
func FromSignal(sig int) int {
	return 128 + sig
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Code
	}

	switch boxerrors.KindOf(err) {
	case boxerrors.KindUsage:
		return Usage
	case boxerrors.KindConfig:
		return Config
	case boxerrors.KindMissingInput:
		return MissingInput
	case boxerrors.KindCompatibility, boxerrors.KindSignature:
		return Compatibility
	case boxerrors.KindExecution:
		return Execution
	case boxerrors.KindArchiveExists:
		return ArchiveExists
	case boxerrors.KindArchiveWrite, boxerrors.KindArchiveRead:
		return ArchiveWrite
	}

	// Errors produced by cobra's own argument parsing.
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return Usage
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
		return Usage
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return Usage
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case Usage:
		return "Usage error (invalid flags or arguments)"
	case Config:
		return "Configuration error"
	case MissingInput:
		return "Missing input file"
	case Compatibility:
		return "Pack not compatible with this host"
	case Execution:
		return "Could not start isolated process"
	case ArchiveExists:
		return "Pack target already exists"
	case ArchiveWrite:
		return "Pack I/O error"
	case Interrupted:
		return "Interrupted"
	default:
		if code > 128 && code < 128+65 {
			return fmt.Sprintf("Terminated by signal %d", code-128)
		}
		return "Replayed command status"
	}
}
