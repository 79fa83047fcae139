package bundle

import (
	"fmt"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

func writeError(msg string, cause error) error {
	return errors.Wrap(errors.ErrCodeArchiveWrite, msg, cause).
		WithSuggestion("Check free space and permissions in the target directory").
		WithDocs(errors.DocsPacking)
}

func readError(path string, cause error) error {
	return errors.Wrap(errors.ErrCodeArchiveRead, fmt.Sprintf("cannot read pack %s", path), cause).
		WithSuggestion("Make sure the file is a pack created by 'reprobox pack'").
		WithDocs(errors.DocsUnpacking)
}

func symlinkOverflowError(start string) error {
	return errors.Newf(errors.ErrCodeArchiveSymlinks,
		"symbolic link chain starting at %s exceeds %d hops", start, MaxSymlinkHops).
		WithSuggestion("Check the path for a symlink loop").
		WithDocs(errors.DocsPacking)
}

func missingPayloadError(path string, cause error) error {
	return errors.Wrap(errors.ErrCodeInputPayload, fmt.Sprintf("file to pack is missing: %s", path), cause).
		WithSuggestion("Pack on the machine where the trace was recorded, before files are removed")
}
