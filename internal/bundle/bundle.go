// Package bundle builds and reads packs: gzip-compressed tar archives that
// carry a recorded experiment's config, its optional trace database, and
// every file needed to replay it.
package bundle

import (
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/reprobox/internal/config"
)

// Archive layout.
const (
	MetadataDir    = "METADATA"
	VersionMember  = MetadataDir + "/version"
	ConfigMember   = MetadataDir + "/" + config.FileName
	TraceMember    = MetadataDir + "/" + TraceFileName
	TraceFileName  = "trace.sqlite3"
	VersionMarker  = "REPROZIP VERSION 1\n"
	DefaultPackExt = ".rpz"
)

// MaxSymlinkHops bounds how many links the packer follows from one path.
// It matches the kernel's MAXSYMLINKS on Linux.
const MaxSymlinkHops = 40

// PayloadEntry maps a host path to the member it is stored under.
type PayloadEntry struct {
	Path   string `json:"path" yaml:"path"`
	Member string `json:"member" yaml:"member"`
}

// Manifest is what a pack declares about itself.
type Manifest struct {
	Version    string         `json:"version" yaml:"version"`
	ConfigData []byte         `json:"-" yaml:"-"`
	Config     *config.Config `json:"-" yaml:"-"`
	HasTrace   bool           `json:"has_trace" yaml:"has_trace"`
	TraceSize  int64          `json:"trace_size,omitempty" yaml:"trace_size,omitempty"`
	Payload    []PayloadEntry `json:"payload" yaml:"payload"`
}

// MemberName returns the member name for an absolute host path: the
// cleaned path without its leading slash.
func MemberName(path string) string {
	return strings.TrimLeft(filepath.ToSlash(filepath.Clean(path)), "/")
}

// HostPath is the inverse of MemberName.
func HostPath(member string) string {
	return "/" + strings.TrimLeft(strings.TrimSuffix(member, "/"), "/")
}

func isMetadata(member string) bool {
	return member == MetadataDir || strings.HasPrefix(member, MetadataDir+"/")
}
