// Package config models the recorded experiment: the ordered runs, the
// packages and standalone files they touched, and which runs read or wrote
// each file. A Config is immutable after Load.
package config

import "strings"

// FileName is the file every pack and replay root carries its config under.
const FileName = "config.yml"

// Run is one recorded command execution.
type Run struct {
	// Index is the run's position in the recorded sequence.
	Index int `yaml:"-"`

	ID           string            `yaml:"id"`
	Binary       string            `yaml:"binary,omitempty"`
	Argv         []string          `yaml:"argv"`
	Environ      map[string]string `yaml:"environ"`
	WorkingDir   string            `yaml:"workingdir"`
	UID          int               `yaml:"uid"`
	GID          int               `yaml:"gid"`
	Architecture string            `yaml:"architecture,omitempty"`
	System       string            `yaml:"system,omitempty"`
	InputFiles   []string          `yaml:"input_files,omitempty"`
	OutputFiles  []string          `yaml:"output_files,omitempty"`
}

// Command returns the argument vector to replay. When the tracer recorded
// the resolved binary, it replaces argv[0].
func (r Run) Command() []string {
	cmd := make([]string, 0, len(r.Argv))
	if r.Binary != "" {
		cmd = append(cmd, r.Binary)
	} else {
		cmd = append(cmd, r.Argv[0])
	}
	return append(cmd, r.Argv[1:]...)
}

// String renders the recorded command for listings.
func (r Run) String() string {
	return strings.Join(r.Argv, " ")
}

// Role tells whether a file is shipped with a package or on its own.
type Role int

const (
	// RolePackaged files belong to a Package and ship only if it has packfiles set.
	RolePackaged Role = iota
	// RoleOther files are standalone and always ship.
	RoleOther
)

// String returns the string representation of the role
func (r Role) String() string {
	if r == RoleOther {
		return "other"
	}
	return "packaged"
}

// FileEntry is a file the trace observed.
type FileEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`

	// Derived at load time.
	Role      Role   `yaml:"-"`
	Package   string `yaml:"-"`
	ReadBy    []int  `yaml:"-"`
	WrittenBy []int  `yaml:"-"`
}

// IsInput reports whether any run reads the file.
func (f *FileEntry) IsInput() bool {
	return len(f.ReadBy) > 0
}

// IsOutput reports whether any run writes the file.
func (f *FileEntry) IsOutput() bool {
	return len(f.WrittenBy) > 0
}

// Package groups files installed by one system package.
type Package struct {
	Name      string       `yaml:"name"`
	Version   string       `yaml:"version,omitempty"`
	PackFiles bool         `yaml:"packfiles"`
	Files     []*FileEntry `yaml:"files"`
}

// Config is the recorded experiment descriptor.
type Config struct {
	Version    string       `yaml:"version,omitempty"`
	Runs       []Run        `yaml:"runs"`
	Packages   []Package    `yaml:"packages,omitempty"`
	OtherFiles []*FileEntry `yaml:"other_files,omitempty"`

	files map[string]*FileEntry
	order []string
}

// File looks up a file by name.
func (c *Config) File(name string) (*FileEntry, bool) {
	f, ok := c.files[name]
	return f, ok
}

// Files returns every file in config order: package files first, in package
// order, then standalone files.
func (c *Config) Files() []*FileEntry {
	out := make([]*FileEntry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.files[name])
	}
	return out
}

// Inputs returns the files read by at least one run, in config order.
func (c *Config) Inputs() []*FileEntry {
	var out []*FileEntry
	for _, f := range c.Files() {
		if f.IsInput() {
			out = append(out, f)
		}
	}
	return out
}

// Outputs returns the files written by at least one run, in config order.
func (c *Config) Outputs() []*FileEntry {
	var out []*FileEntry
	for _, f := range c.Files() {
		if f.IsOutput() {
			out = append(out, f)
		}
	}
	return out
}

// RunByID finds a run by its recorded identifier.
func (c *Config) RunByID(id string) (Run, bool) {
	for _, r := range c.Runs {
		if r.ID == id {
			return r, true
		}
	}
	return Run{}, false
}
