package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})

	Version = "1.2.0"
	Commit = "abc123def456"
	Date = "2026-01-01T12:00:00Z"

	info := GetInfo()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, PackFormat, info.PackFormat)

	s := info.String()
	assert.Contains(t, s, "reprobox 1.2.0 (abc123de)")
	assert.Contains(t, s, "pack format 1")
}
