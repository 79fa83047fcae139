package sandbox

import (
	"archive/tar"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// InputStatus is one input file and what currently replaces it.
type InputStatus struct {
	Name         string                   `json:"name" yaml:"name"`
	Path         string                   `json:"path" yaml:"path"`
	ReadBy       []int                    `json:"read_by" yaml:"read_by"`
	Substitution *state.InputSubstitution `json:"substitution,omitempty" yaml:"substitution,omitempty"`
}

// OutputStatus is one output file and whether it exists in the root.
type OutputStatus struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	WrittenBy []int  `json:"written_by" yaml:"written_by"`
	Present   bool   `json:"present" yaml:"present"`
}

// ListInputs reports every input file of the target.
func (t *Target) ListInputs() ([]InputStatus, error) {
	st, err := t.State()
	if err != nil {
		return nil, err
	}
	var out []InputStatus
	for _, f := range t.Config.Inputs() {
		status := InputStatus{Name: f.Name, Path: f.Path, ReadBy: f.ReadBy}
		if sub, ok := st.Inputs[f.Name]; ok {
			status.Substitution = &sub
		}
		out = append(out, status)
	}
	return out, nil
}

// ListOutputs reports every output file of the target.
func (t *Target) ListOutputs() ([]OutputStatus, error) {
	var out []OutputStatus
	for _, f := range t.Config.Outputs() {
		status := OutputStatus{Name: f.Name, Path: f.Path, WrittenBy: f.WrittenBy}
		if _, err := resolveFinal(t.Root(), f.Path); err == nil {
			status.Present = true
		}
		out = append(out, status)
	}
	return out, nil
}

// Upload replaces the input file name inside the root with the local file
// at localPath, keeping the original file's permission bits.
func (t *Target) Upload(localPath, name string, logger *log.Logger) (*state.InputSubstitution, error) {
	if logger == nil {
		logger = log.L()
	}
	f, err := t.file(name, (*config.FileEntry).IsInput, "input")
	if err != nil {
		return nil, err
	}

	source, err := filepath.Abs(localPath)
	if err != nil {
		return nil, err
	}
	digest, err := bundle.Digest(source)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUsageArgument, "cannot read upload source "+localPath, err)
	}

	target, err := inputTarget(t.Root(), f.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", f.Path, err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}
	if err := installFile(source, target, mode); err != nil {
		return nil, fmt.Errorf("replace input %s: %w", name, err)
	}

	sub := state.InputSubstitution{Source: source, Digest: digest, UpdatedAt: time.Now().UTC()}
	if _, err := t.Tracker().RecordInput(name, sub); err != nil {
		return nil, err
	}
	logger.Info("input replaced", "name", name, "path", f.Path, "source", source, "digest", digest)
	return &sub, nil
}

// Restore puts the packed version of the input file name back into the
// root.
func (t *Target) Restore(name string, logger *log.Logger) (*state.InputSubstitution, error) {
	if logger == nil {
		logger = log.L()
	}
	f, err := t.file(name, (*config.FileEntry).IsInput, "input")
	if err != nil {
		return nil, err
	}

	member := bundle.MemberName(f.Path)
	var (
		found  bool
		header *tar.Header
		data   []byte
	)
	err = bundle.Walk(t.InputsPath(), func(h *tar.Header, r io.Reader) error {
		if strings.TrimPrefix(h.Name, "./") != member {
			return nil
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		found, header, data = true, h, content
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Newf(errors.ErrCodeInputPayload, "the pack did not include input %q (%s)", name, f.Path).
			WithSuggestion("Upload a replacement with 'localpath:" + name + "'")
	}

	target, err := inputTarget(t.Root(), f.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", f.Path, err)
	}
	if err := writeReplacing(target, bytes.NewReader(data), os.FileMode(header.Mode).Perm()); err != nil {
		return nil, fmt.Errorf("restore input %s: %w", name, err)
	}
	digest, err := bundle.DigestReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sub := state.InputSubstitution{Original: true, Digest: digest, UpdatedAt: time.Now().UTC()}
	if _, err := t.Tracker().RecordInput(name, sub); err != nil {
		return nil, err
	}
	logger.Info("input restored", "name", name, "path", f.Path)
	return &sub, nil
}

// inputTarget is where an input's content lives in root: the file its
// path resolves to, or the path itself when nothing is there yet.
func inputTarget(root, p string) (string, error) {
	if resolved, err := resolveFinal(root, p); err == nil {
		return resolved, nil
	}
	return bundle.InRoot(root, p, true)
}

// Download copies the output file name from the root to w.
func (t *Target) Download(name string, w io.Writer) error {
	f, err := t.file(name, (*config.FileEntry).IsOutput, "output")
	if err != nil {
		return err
	}
	in, err := t.openOutput(f)
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	return nil
}

// DownloadFile copies the output file name from the root to dest,
// replacing any file there.
func (t *Target) DownloadFile(name, dest string) error {
	f, err := t.file(name, (*config.FileEntry).IsOutput, "output")
	if err != nil {
		return err
	}
	in, err := t.openOutput(f)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := writeReplacing(dest, in, 0o644); err != nil {
		return fmt.Errorf("download %s to %s: %w", name, dest, err)
	}
	return nil
}

// DownloadAll copies every present output into dir under its base name
// and returns the names copied.
func (t *Target) DownloadAll(dir string) ([]string, error) {
	var copied []string
	for _, f := range t.Config.Outputs() {
		dest := filepath.Join(dir, filepath.Base(f.Path))
		if err := t.DownloadFile(f.Name, dest); err != nil {
			if errors.IsKind(err, errors.KindMissingInput) {
				continue
			}
			return copied, err
		}
		copied = append(copied, f.Name)
	}
	return copied, nil
}

func (t *Target) openOutput(f *config.FileEntry) (*os.File, error) {
	p, err := resolveFinal(t.Root(), f.Path)
	var in *os.File
	if err == nil {
		in, err = os.Open(p)
	}
	if err == nil {
		return in, nil
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.Newf(errors.ErrCodeInputPayload, "output %q (%s) has not been produced", f.Name, f.Path).
			WithSuggestion(fmt.Sprintf("Run the runs that write it first: %v", f.WrittenBy))
	}
	return nil, fmt.Errorf("open output %s: %w", f.Name, err)
}
