package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Usage errors (USAGE-001 to USAGE-099)
	ErrCodeUsageFlags        ErrorCode = "USAGE-001"
	ErrCodeUsageArgument     ErrorCode = "USAGE-002"
	ErrCodeUsageNotSetUp     ErrorCode = "USAGE-003"
	ErrCodeUsageAlreadySetUp ErrorCode = "USAGE-004"
	ErrCodeUsageUnknownFile  ErrorCode = "USAGE-005"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound  ErrorCode = "CONFIG-001"
	ErrCodeConfigMalformed ErrorCode = "CONFIG-002"
	ErrCodeConfigDangling  ErrorCode = "CONFIG-003"
	ErrCodeConfigRunRange  ErrorCode = "CONFIG-004"
	ErrCodeConfigInvalid   ErrorCode = "CONFIG-005"

	// Archive errors (ARCHIVE-001 to ARCHIVE-099)
	ErrCodeArchiveExists   ErrorCode = "ARCHIVE-001"
	ErrCodeArchiveWrite    ErrorCode = "ARCHIVE-002"
	ErrCodeArchiveSymlinks ErrorCode = "ARCHIVE-003"
	ErrCodeArchiveRead     ErrorCode = "ARCHIVE-004"

	// Compatibility errors (COMPAT-001 to COMPAT-099)
	ErrCodeCompatVersion  ErrorCode = "COMPAT-001"
	ErrCodeCompatPlatform ErrorCode = "COMPAT-002"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeExecSpawn ErrorCode = "EXEC-001"

	// Missing input errors (INPUT-001 to INPUT-099)
	ErrCodeInputConfig  ErrorCode = "INPUT-001"
	ErrCodeInputPayload ErrorCode = "INPUT-002"

	// Registry errors (REGISTRY-001 to REGISTRY-099)
	ErrCodeRegistryAuth      ErrorCode = "REGISTRY-001"
	ErrCodeRegistryNotFound  ErrorCode = "REGISTRY-002"
	ErrCodeRegistryNetwork   ErrorCode = "REGISTRY-003"
	ErrCodeRegistryReference ErrorCode = "REGISTRY-004"
	ErrCodeRegistryUnknown   ErrorCode = "REGISTRY-005"

	// Signature errors (SIGN-001 to SIGN-099)
	ErrCodeSignKey      ErrorCode = "SIGN-001"
	ErrCodeSignMissing  ErrorCode = "SIGN-002"
	ErrCodeSignMismatch ErrorCode = "SIGN-003"
)

// Kind groups error codes into the failure classes callers branch on.
type Kind string

const (
	KindUsage         Kind = "usage"
	KindConfig        Kind = "config"
	KindArchiveExists Kind = "archive_exists"
	KindArchiveWrite  Kind = "archive_write"
	KindArchiveRead   Kind = "archive_read"
	KindCompatibility Kind = "compatibility"
	KindExecution     Kind = "execution"
	KindMissingInput  Kind = "missing_input"
	KindRegistry      Kind = "registry"
	KindSignature     Kind = "signature"
	KindUnknown       Kind = "unknown"
)

// Kind returns the failure class of the code.
func (c ErrorCode) Kind() Kind {
	switch c {
	case ErrCodeArchiveExists:
		return KindArchiveExists
	case ErrCodeArchiveWrite, ErrCodeArchiveSymlinks:
		return KindArchiveWrite
	case ErrCodeArchiveRead:
		return KindArchiveRead
	}

	prefix, _, _ := strings.Cut(string(c), "-")
	switch prefix {
	case "USAGE":
		return KindUsage
	case "CONFIG":
		return KindConfig
	case "COMPAT":
		return KindCompatibility
	case "EXEC":
		return KindExecution
	case "INPUT":
		return KindMissingInput
	case "REGISTRY":
		return KindRegistry
	case "SIGN":
		return KindSignature
	default:
		return KindUnknown
	}
}

// BoxError represents an error with code, suggestions, and documentation
type BoxError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *BoxError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	if e.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", e.DocsURL)
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *BoxError) Unwrap() error {
	return e.Cause
}

// Kind returns the failure class of the error.
func (e *BoxError) Kind() Kind {
	return e.Code.Kind()
}

// New creates a new BoxError
func New(code ErrorCode, message string) *BoxError {
	return &BoxError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new BoxError with a formatted message
func Newf(code ErrorCode, format string, args ...any) *BoxError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new BoxError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *BoxError {
	return &BoxError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *BoxError) WithSuggestion(suggestion string) *BoxError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *BoxError) WithSuggestions(suggestions ...string) *BoxError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *BoxError) WithDocs(url string) *BoxError {
	e.DocsURL = url
	return e
}

// As finds the first BoxError in err's chain.
func As(err error) (*BoxError, bool) {
	var boxErr *BoxError
	if stderrors.As(err, &boxErr) {
		return boxErr, true
	}
	return nil, false
}

// KindOf returns the failure class of err, or KindUnknown.
func KindOf(err error) Kind {
	if boxErr, ok := As(err); ok {
		return boxErr.Kind()
	}
	return KindUnknown
}

// IsKind reports whether err carries a BoxError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the code of the first BoxError in err's chain.
func CodeOf(err error) ErrorCode {
	if boxErr, ok := As(err); ok {
		return boxErr.Code
	}
	return ""
}

// Documentation pages linked from archive and compatibility errors.
const (
	DocsPacking   = "https://docs.reprozip.org/en/1.x/packing.html"
	DocsUnpacking = "https://docs.reprozip.org/en/1.x/unpacking.html"
)

// Common error constructors for frequently used errors

// NewArchiveExistsError reports a pack target that is already present.
func NewArchiveExistsError(path string) *BoxError {
	return Newf(ErrCodeArchiveExists, "pack target already exists: %s", path).
		WithSuggestion("Choose a different target path").
		WithSuggestion("Remove the existing file if it is no longer needed").
		WithDocs(DocsPacking)
}

// NewConfigNotFoundError reports an absent config file.
func NewConfigNotFoundError(path string) *BoxError {
	return Newf(ErrCodeConfigNotFound, "configuration file not found: %s", path).
		WithSuggestion("Check that the trace directory contains config.yml")
}

// NewConfigMalformedError reports a config file that failed to parse.
func NewConfigMalformedError(path string, cause error) *BoxError {
	return Wrap(ErrCodeConfigMalformed, fmt.Sprintf("failed to parse configuration: %s", path), cause).
		WithSuggestion("Check the YAML syntax of the configuration file")
}

// NewRunRangeError reports a run selection outside [0, N).
func NewRunRangeError(index, count int) *BoxError {
	return Newf(ErrCodeConfigRunRange, "run %d out of range (have %d runs)", index, count).
		WithSuggestion(fmt.Sprintf("Select a run between 0 and %d", count-1))
}

// NewNotSetUpError reports a replay target that has not been created.
func NewNotSetUpError(target string) *BoxError {
	return Newf(ErrCodeUsageNotSetUp, "target is not set up: %s", target).
		WithSuggestion("Run 'reprobox sandbox setup <pack> <target>' first")
}

// NewAlreadySetUpError reports a replay target that already exists.
func NewAlreadySetUpError(target string) *BoxError {
	return Newf(ErrCodeUsageAlreadySetUp, "target already set up: %s", target).
		WithSuggestion("Run 'reprobox sandbox destroy <target>' to start over").
		WithSuggestion("Choose a different target directory")
}

// NewSpawnError reports a failure of the isolation primitive itself.
func NewSpawnError(cause error) *BoxError {
	return Wrap(ErrCodeExecSpawn, "failed to start isolated process", cause).
		WithSuggestion("Chroot and privilege drop usually require running as root")
}
