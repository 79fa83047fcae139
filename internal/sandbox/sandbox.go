// Package sandbox manages replay targets: a directory holding an isolated
// root reconstructed from a pack, a copy of its configuration, the
// original input files and the replay state sidecar.
package sandbox

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// Target layout.
const (
	RootDir       = "root"
	InputsArchive = "inputs.tar.gz"
)

// Target is an unpacked replay target.
type Target struct {
	Dir    string
	Config *config.Config
}

// Open loads the target at dir. It fails with a usage error when dir was
// never set up.
func Open(dir string) (*Target, error) {
	if !state.Exists(dir) {
		return nil, errors.NewNotSetUpError(dir)
	}
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, err
	}
	return &Target{Dir: dir, Config: cfg}, nil
}

// Root is the isolated root directory.
func (t *Target) Root() string {
	return filepath.Join(t.Dir, RootDir)
}

// InputsPath is the archive holding the original input files.
func (t *Target) InputsPath() string {
	return filepath.Join(t.Dir, InputsArchive)
}

// Tracker returns the state tracker of the target.
func (t *Target) Tracker() *state.Tracker {
	return state.NewTracker(t.Dir)
}

// State reads the sidecar.
func (t *Target) State() (*state.ReplayState, error) {
	return state.Read(t.Dir)
}

// HostPath maps a path recorded on the original host into the root.
func (t *Target) HostPath(p string) (string, error) {
	resolved, err := bundle.InRoot(t.Root(), p, false)
	if err != nil {
		return "", fmt.Errorf("resolve %s in %s: %w", p, t.Root(), err)
	}
	return resolved, nil
}

// file returns the named file entry, or a usage error listing what exists.
func (t *Target) file(name string, want func(*config.FileEntry) bool, kind string) (*config.FileEntry, error) {
	f, ok := t.Config.File(name)
	if !ok || !want(f) {
		var names []string
		for _, candidate := range t.Config.Files() {
			if want(candidate) {
				names = append(names, candidate.Name)
			}
		}
		return nil, errors.Newf(errors.ErrCodeUsageUnknownFile, "no %s file named %q", kind, name).
			WithSuggestion(fmt.Sprintf("Known %s files: %v", kind, names))
	}
	return f, nil
}

// exists reports whether p exists without following a final symlink.
func exists(p string) (bool, error) {
	_, err := os.Lstat(p)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
