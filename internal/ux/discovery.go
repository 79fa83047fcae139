package ux

import (
	"os"
	"path/filepath"
)

// DiscoverTraceDir searches for the trace directory in the current
// directory and its parents, stopping at a git root or the filesystem
// root. When none is found it returns the default below the current
// directory.
func DiscoverTraceDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, DefaultTraceDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		// Stop at git root
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return filepath.Join(cwd, DefaultTraceDir), nil
}

// NewPathDefaultsWithDiscovery creates PathDefaults around the discovered
// trace directory
func NewPathDefaultsWithDiscovery() *PathDefaults {
	dir, err := DiscoverTraceDir()
	if err != nil {
		return NewPathDefaults()
	}
	return &PathDefaults{TraceDir: dir}
}
