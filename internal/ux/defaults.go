package ux

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultTraceDir is where the tracer leaves config.yml and the trace
	// database.
	DefaultTraceDir = ".reprozip-trace"

	// DefaultPackExt is the extension of pack files.
	DefaultPackExt = ".rpz"

	// DefaultPackName is the pack written when none is named.
	DefaultPackName = "experiment" + DefaultPackExt
)

// PathDefaults provides smart defaults for common file paths
type PathDefaults struct {
	TraceDir string
}

// NewPathDefaults creates a new PathDefaults with sensible defaults
func NewPathDefaults() *PathDefaults {
	return &PathDefaults{
		TraceDir: DefaultTraceDir,
	}
}

// ConfigFile returns the path of the recorded config.yml
func (pd *PathDefaults) ConfigFile() string {
	return filepath.Join(pd.TraceDir, "config.yml")
}

// TraceDatabase returns the path of the trace database
func (pd *PathDefaults) TraceDatabase() string {
	return filepath.Join(pd.TraceDir, "trace.sqlite3")
}

// PackFile returns the default pack path, next to the trace directory
func (pd *PathDefaults) PackFile() string {
	return filepath.Join(filepath.Dir(filepath.Clean(pd.TraceDir)), DefaultPackName)
}

// ValidateTraceDir checks that the trace directory holds a configuration
func (pd *PathDefaults) ValidateTraceDir() error {
	return ValidateRequiredFile(pd.ConfigFile(), "configuration", "reprozip trace <command>")
}

// ValidateRequiredFile checks if a required file exists and provides helpful error
func ValidateRequiredFile(path string, fileType string, creationCommand string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%s not found at: %s\n\nRun '%s' to create it", fileType, path, creationCommand)
	} else if err != nil {
		return fmt.Errorf("error accessing %s: %w", path, err)
	}
	return nil
}

// SuggestNextSteps provides contextual next steps based on what exists
func SuggestNextSteps(pd *PathDefaults) string {
	if _, err := os.Stat(pd.ConfigFile()); os.IsNotExist(err) {
		return "Trace an experiment first; its configuration goes to " + pd.ConfigFile()
	}
	if _, err := os.Stat(pd.PackFile()); os.IsNotExist(err) {
		return "Create a pack with 'reprobox pack " + pd.PackFile() + "'"
	}
	return "Unpack it elsewhere with 'reprobox sandbox setup " + pd.PackFile() + " <target>'"
}
