package ux

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewPathDefaults(t *testing.T) {
	defaults := NewPathDefaults()

	if defaults == nil {
		t.Fatal("NewPathDefaults() returned nil")
	}

	if defaults.TraceDir != ".reprozip-trace" {
		t.Errorf("TraceDir = %s, want .reprozip-trace", defaults.TraceDir)
	}
}

func TestPathDefaults_Files(t *testing.T) {
	defaults := &PathDefaults{TraceDir: filepath.Join("work", ".reprozip-trace")}

	if got, want := defaults.ConfigFile(), filepath.Join("work", ".reprozip-trace", "config.yml"); got != want {
		t.Errorf("ConfigFile() = %s, want %s", got, want)
	}
	if got, want := defaults.TraceDatabase(), filepath.Join("work", ".reprozip-trace", "trace.sqlite3"); got != want {
		t.Errorf("TraceDatabase() = %s, want %s", got, want)
	}
	if got, want := defaults.PackFile(), filepath.Join("work", "experiment.rpz"); got != want {
		t.Errorf("PackFile() = %s, want %s", got, want)
	}
}

func TestValidateTraceDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".reprozip-trace")
	defaults := &PathDefaults{TraceDir: dir}

	err := defaults.ValidateTraceDir()
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
	if !strings.Contains(err.Error(), "reprozip trace") {
		t.Errorf("error %q does not say how to create the configuration", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(defaults.ConfigFile(), []byte("runs: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := defaults.ValidateTraceDir(); err != nil {
		t.Errorf("ValidateTraceDir() error = %v", err)
	}
}

func TestSuggestNextSteps(t *testing.T) {
	root := t.TempDir()
	defaults := &PathDefaults{TraceDir: filepath.Join(root, ".reprozip-trace")}

	if got := SuggestNextSteps(defaults); !strings.Contains(got, "Trace an experiment") {
		t.Errorf("without a trace: %q", got)
	}

	if err := os.MkdirAll(defaults.TraceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(defaults.ConfigFile(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := SuggestNextSteps(defaults); !strings.Contains(got, "reprobox pack") {
		t.Errorf("without a pack: %q", got)
	}

	if err := os.WriteFile(defaults.PackFile(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := SuggestNextSteps(defaults); !strings.Contains(got, "sandbox setup") {
		t.Errorf("with a pack: %q", got)
	}
}
