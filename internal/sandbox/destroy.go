package sandbox

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// DestroyOutcome tells what Destroy found.
type DestroyOutcome int

const (
	// Destroyed means a target was removed.
	Destroyed DestroyOutcome = iota
	// NothingToDestroy means dir held no target.
	NothingToDestroy
)

func (o DestroyOutcome) String() string {
	if o == NothingToDestroy {
		return "nothing to destroy"
	}
	return "destroyed"
}

// Destroy removes the target at dir: root, configuration, inputs archive
// and sidecar. A dir holding no target is reported as NothingToDestroy,
// not as an error, and is left alone.
func Destroy(dir string, logger *log.Logger) (DestroyOutcome, error) {
	if logger == nil {
		logger = log.L()
	}

	rootExists, err := exists(filepath.Join(dir, RootDir))
	if err != nil {
		return Destroyed, fmt.Errorf("inspect target: %w", err)
	}
	if !state.Exists(dir) && !rootExists {
		logger.Info("nothing to destroy", "target", dir)
		return NothingToDestroy, nil
	}

	logger.Info("removing target", "target", dir)
	if err := removeTree(dir); err != nil {
		return Destroyed, fmt.Errorf("remove target %s: %w", dir, err)
	}
	return Destroyed, nil
}

// removeTree deletes dir recursively, first making every directory
// writable so read-only directories from the pack do not stop it.
// Symbolic links are never followed.
func removeTree(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0o700 != 0o700 {
			return os.Chmod(p, info.Mode().Perm()|0o700)
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.RemoveAll(dir)
}

func isNotEmpty(err error) bool {
	return stderrors.Is(err, unix.ENOTEMPTY) || stderrors.Is(err, unix.EEXIST)
}
