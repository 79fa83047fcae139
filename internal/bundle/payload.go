package bundle

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/log"
)

// planner collects payload entries in a single deterministic pass.
type planner struct {
	logger  *log.Logger
	entries []PayloadEntry
	seen    map[string]bool
}

// PlanPayload lists the members a pack of cfg contains, in write order:
// files of packages with packfiles set (in package order), then the
// standalone files. A symbolic link is followed to its final target and
// each intermediate link is added too. Directories are added recursively
// in lexical order. A member already planned is not added again.
func PlanPayload(cfg *config.Config, logger *log.Logger) ([]PayloadEntry, error) {
	if logger == nil {
		logger = log.L()
	}
	p := &planner{logger: logger, seen: make(map[string]bool)}

	for _, pkg := range cfg.Packages {
		if !pkg.PackFiles {
			logger.Info("not adding files from package", "package", pkg.Name)
			continue
		}
		logger.Info("adding files from package", "package", pkg.Name, "files", len(pkg.Files))
		for _, f := range pkg.Files {
			if err := p.addChain(f.Path); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("adding other files", "files", len(cfg.OtherFiles))
	for _, f := range cfg.OtherFiles {
		if err := p.addChain(f.Path); err != nil {
			return nil, err
		}
	}

	return p.entries, nil
}

// addChain adds path and, while it is a link, every link target.
func (p *planner) addChain(path string) error {
	current := filepath.Clean(path)
	for hops := 0; ; hops++ {
		info, err := p.add(current)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		if hops == MaxSymlinkHops {
			return symlinkOverflowError(path)
		}

		target, err := os.Readlink(current)
		if err != nil {
			return writeError("read symbolic link "+current, err)
		}
		if filepath.IsAbs(target) {
			current = filepath.Clean(target)
		} else {
			current = filepath.Join(filepath.Dir(current), target)
		}
	}
}

// add plans one path, descending into directories.
func (p *planner) add(path string) (fs.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, missingPayloadError(path, err)
		}
		return nil, writeError("stat "+path, err)
	}

	member := MemberName(path)
	if member == "" || p.seen[member] {
		return info, nil
	}
	p.seen[member] = true
	p.entries = append(p.entries, PayloadEntry{Path: path, Member: member})
	p.logger.Debug("planned member", "path", path)

	if info.IsDir() {
		if err := p.addDir(path); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (p *planner) addDir(dir string) error {
	// ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return writeError("list directory "+dir, err)
	}

	for _, e := range entries {
		if _, err := p.add(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
