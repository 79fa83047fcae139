//go:build !linux

package exec

import (
	"fmt"
	"runtime"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

type unsupportedIsolator struct{}

// NewIsolator returns the isolator for this platform.
func NewIsolator() Isolator {
	return unsupportedIsolator{}
}

func (unsupportedIsolator) Spawn(SpawnSpec) (Handle, error) {
	return nil, errors.NewSpawnError(fmt.Errorf("chroot replay is not supported on %s", runtime.GOOS))
}
