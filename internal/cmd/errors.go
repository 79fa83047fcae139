package cmd

import (
	"fmt"
	"io"

	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/exitcode"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

// FormatError renders err for the terminal, adding a suggestion when the
// error carries none of its own.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	return ux.EnhanceError(err).Error()
}

// ReportError writes err and the meaning of its exit code to w and returns
// that code. With JSON logs the failure is also logged as one record.
func ReportError(w io.Writer, err error) int {
	code := exitcode.DetermineExitCode(err)
	if logger := log.L(); logger.Config().Format == log.FormatJSON {
		logger.LogError(err)
	}
	fmt.Fprintf(w, "Error: %s\n", FormatError(err))
	fmt.Fprintf(w, "(exit %d: %s)\n", code, exitcode.GetExitCodeDescription(code))
	return code
}

// invalidFileSpec reports a malformed upload or download argument.
func invalidFileSpec(spec, form string) error {
	return errors.Newf(errors.ErrCodeUsageArgument, "invalid file specification %q", spec).
		WithSuggestion(fmt.Sprintf("Use the form %s", form))
}

// conflictingFlags reports two flags that cannot be combined.
func conflictingFlags(a, b string) error {
	return errors.Newf(errors.ErrCodeUsageFlags, "--%s and --%s cannot be used together", a, b)
}
