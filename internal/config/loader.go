package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

// Load reads and validates a config file. Every failure is a config error:
// absent, malformed, or referencing a file it does not define.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewConfigNotFoundError(filename)
		}
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, "read configuration", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewConfigMalformedError(filename, err)
	}
	return cfg, nil
}

// Parse decodes and validates config bytes. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.New(errors.ErrCodeConfigMalformed, "configuration is empty")
		}
		return nil, errors.Wrap(errors.ErrCodeConfigMalformed, "decode configuration", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal serializes a config. Derived fields are not written; Parse
// recomputes them.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

// validate checks the whole cross-reference graph and fills the derived
// fields. It runs once, before the Config is handed out.
func (c *Config) validate() error {
	if len(c.Runs) == 0 {
		return invalid("configuration has no runs")
	}

	c.files = make(map[string]*FileEntry)
	c.order = nil

	add := func(f *FileEntry, role Role, pkg string) error {
		if f == nil {
			return invalid("empty file entry")
		}
		if f.Name == "" {
			return invalid(fmt.Sprintf("file with path %q has no name", f.Path))
		}
		if !path.IsAbs(f.Path) {
			return invalid(fmt.Sprintf("file %q: path %q is not absolute", f.Name, f.Path))
		}
		if _, dup := c.files[f.Name]; dup {
			return invalid(fmt.Sprintf("file name %q defined more than once", f.Name))
		}
		f.Role = role
		f.Package = pkg
		f.ReadBy = nil
		f.WrittenBy = nil
		c.files[f.Name] = f
		c.order = append(c.order, f.Name)
		return nil
	}

	for _, pkg := range c.Packages {
		if pkg.Name == "" {
			return invalid("package without a name")
		}
		for _, f := range pkg.Files {
			if err := add(f, RolePackaged, pkg.Name); err != nil {
				return err
			}
		}
	}
	for _, f := range c.OtherFiles {
		if err := add(f, RoleOther, ""); err != nil {
			return err
		}
	}

	ids := make(map[string]int, len(c.Runs))
	for i := range c.Runs {
		r := &c.Runs[i]
		r.Index = i
		if r.ID == "" {
			r.ID = fmt.Sprintf("run%d", i)
		}
		if prev, dup := ids[r.ID]; dup {
			return invalid(fmt.Sprintf("runs %d and %d share id %q", prev, i, r.ID))
		}
		ids[r.ID] = i

		if len(r.Argv) == 0 {
			return invalid(fmt.Sprintf("run %d has an empty argument vector", i))
		}
		if !path.IsAbs(r.WorkingDir) {
			return invalid(fmt.Sprintf("run %d: working directory %q is not absolute", i, r.WorkingDir))
		}
		if r.UID < 0 || r.GID < 0 {
			return invalid(fmt.Sprintf("run %d: negative uid/gid %d/%d", i, r.UID, r.GID))
		}
		for key := range r.Environ {
			if key == "" || strings.ContainsRune(key, '=') {
				return invalid(fmt.Sprintf("run %d: invalid environment variable name %q", i, key))
			}
		}

		for _, name := range r.InputFiles {
			f, ok := c.files[name]
			if !ok {
				return dangling(i, "reads", name)
			}
			f.ReadBy = appendOnce(f.ReadBy, i)
		}
		for _, name := range r.OutputFiles {
			f, ok := c.files[name]
			if !ok {
				return dangling(i, "writes", name)
			}
			f.WrittenBy = appendOnce(f.WrittenBy, i)
		}
	}

	return nil
}

func appendOnce(s []int, v int) []int {
	if n := len(s); n > 0 && s[n-1] == v {
		return s
	}
	return append(s, v)
}

func invalid(msg string) error {
	return errors.New(errors.ErrCodeConfigInvalid, msg)
}

func dangling(run int, verb, name string) error {
	return errors.Newf(errors.ErrCodeConfigDangling, "run %d %s undefined file %q", run, verb, name).
		WithSuggestion("Every name in input_files/output_files must appear under packages or other_files")
}
