// Package state persists the per-root replay sidecar: which runs have
// executed, which inputs were substituted, and a short invocation history.
package state

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

const (
	// FileName is the sidecar's name inside a replay target.
	FileName = ".reprobox.json"

	// Version is the sidecar schema version.
	Version = 1

	// MaxInvocations bounds the history kept in the sidecar.
	MaxInvocations = 50
)

// InputSubstitution records what currently sits at an input file's path.
type InputSubstitution struct {
	// Source is the host path copied in; empty when Original is set.
	Source    string    `json:"source,omitempty"`
	Original  bool      `json:"original"`
	Digest    string    `json:"digest,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invocation is one "run" command against the root.
type Invocation struct {
	ID        string        `json:"id"`
	Runs      []int         `json:"runs"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exit_code"`
	Signal    int           `json:"signal,omitempty"`
}

// ReplayState is the sidecar content.
type ReplayState struct {
	Version     int                          `json:"version"`
	SetupID     string                       `json:"setup_id"`
	PackDigest  string                       `json:"pack_digest,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
	Runs        map[int]bool                 `json:"runs"`
	Inputs      map[string]InputSubstitution `json:"inputs"`
	Invocations []Invocation                 `json:"invocations,omitempty"`
}

// New returns the state of a freshly created root with runCount runs,
// none executed.
func New(runCount int, packDigest string) *ReplayState {
	now := time.Now().UTC()
	s := &ReplayState{
		Version:    Version,
		SetupID:    uuid.NewString(),
		PackDigest: packDigest,
		CreatedAt:  now,
		UpdatedAt:  now,
		Runs:       make(map[int]bool, runCount),
		Inputs:     make(map[string]InputSubstitution),
	}
	for i := 0; i < runCount; i++ {
		s.Runs[i] = false
	}
	return s
}

// Executed reports whether run i has executed at least once.
func (s *ReplayState) Executed(i int) bool {
	return s.Runs[i]
}

// Clone returns a deep copy.
func (s *ReplayState) Clone() *ReplayState {
	out := *s
	out.Runs = make(map[int]bool, len(s.Runs))
	for k, v := range s.Runs {
		out.Runs[k] = v
	}
	out.Inputs = make(map[string]InputSubstitution, len(s.Inputs))
	for k, v := range s.Inputs {
		out.Inputs[k] = v
	}
	out.Invocations = append([]Invocation(nil), s.Invocations...)
	return &out
}

// Update returns a copy of s with every index in runs marked executed.
// Runs not listed keep their previous flag.
func Update(s *ReplayState, runs []int) *ReplayState {
	out := s.Clone()
	for _, i := range runs {
		out.Runs[i] = true
	}
	return out
}

// WithInput returns a copy of s recording sub for the named input.
func (s *ReplayState) WithInput(name string, sub InputSubstitution) *ReplayState {
	out := s.Clone()
	out.Inputs[name] = sub
	return out
}

// WithInvocation returns a copy of s with inv appended to the history,
// dropping the oldest entries beyond MaxInvocations.
func (s *ReplayState) WithInvocation(inv Invocation) *ReplayState {
	out := s.Clone()
	out.Invocations = append(out.Invocations, inv)
	if n := len(out.Invocations); n > MaxInvocations {
		out.Invocations = out.Invocations[n-MaxInvocations:]
	}
	return out
}

// Path returns the sidecar path for a replay target.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether dir carries a sidecar.
func Exists(dir string) bool {
	_, err := os.Lstat(Path(dir))
	return err == nil
}

// Read loads the sidecar of a replay target.
func Read(dir string) (*ReplayState, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotSetUpError(dir)
		}
		return nil, fmt.Errorf("read replay state: %w", err)
	}

	var s ReplayState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode replay state: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("replay state version %d not supported (want %d)", s.Version, Version)
	}
	if s.Runs == nil {
		s.Runs = make(map[int]bool)
	}
	if s.Inputs == nil {
		s.Inputs = make(map[string]InputSubstitution)
	}
	return &s, nil
}

// Write stores the sidecar atomically: a crash leaves either the previous
// or the new content, never a partial file.
func Write(dir string, s *ReplayState) error {
	if s == nil {
		return fmt.Errorf("replay state is nil")
	}

	out := s.Clone()
	out.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode replay state: %w", err)
	}
	if err := writeFileAtomic(Path(dir), data, 0o644); err != nil {
		return fmt.Errorf("write replay state: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
