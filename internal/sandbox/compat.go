package sandbox

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
)

// Platform is an operating system and machine name as uname(2) reports
// them.
type Platform struct {
	System       string
	Architecture string
}

func (p Platform) String() string {
	return p.System + "/" + p.Architecture
}

// HostPlatform describes the machine reprobox runs on.
func HostPlatform() (Platform, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Platform{}, fmt.Errorf("uname: %w", err)
	}
	return Platform{
		System:       unix.ByteSliceToString(uts.Sysname[:]),
		Architecture: unix.ByteSliceToString(uts.Machine[:]),
	}, nil
}

// normalizeArch folds the names different tools use for one machine.
func normalizeArch(arch string) string {
	arch = strings.ToLower(arch)
	switch arch {
	case "i386", "i486", "i586", "i686", "x86":
		return "i386"
	case "amd64", "x86_64":
		return "x86_64"
	case "arm64", "aarch64":
		return "aarch64"
	}
	return arch
}

// canRun reports whether a host of architecture host executes binaries
// recorded on target.
func canRun(host, target string) bool {
	host, target = normalizeArch(host), normalizeArch(target)
	if host == target {
		return true
	}
	return host == "x86_64" && target == "i386"
}

// CheckCompatibility verifies that every run of cfg was recorded on a
// Linux machine whose binaries host can execute. Runs without a recorded
// platform are accepted.
func CheckCompatibility(cfg *config.Config, host Platform) error {
	if !strings.EqualFold(host.System, "linux") {
		return errors.Newf(errors.ErrCodeCompatPlatform, "chroot replay needs a Linux host, this is %s", host.System).
			WithDocs(errors.DocsUnpacking)
	}
	for _, run := range cfg.Runs {
		if run.System != "" && !strings.HasPrefix(strings.ToLower(run.System), "linux") {
			return errors.Newf(errors.ErrCodeCompatPlatform, "run %d was recorded on %s, not Linux", run.Index, run.System).
				WithSuggestion("Replay this pack on a matching machine or virtual machine").
				WithDocs(errors.DocsUnpacking)
		}
		if run.Architecture != "" && !canRun(host.Architecture, run.Architecture) {
			return errors.Newf(errors.ErrCodeCompatPlatform, "run %d was recorded on %s, this host is %s",
				run.Index, run.Architecture, host.Architecture).
				WithSuggestion("Replay this pack on a matching machine or virtual machine").
				WithSuggestion("Use --skip-compatibility-check to try anyway").
				WithDocs(errors.DocsUnpacking)
		}
	}
	return nil
}

// goosPlatform is the fallback used when uname is unavailable.
func goosPlatform() Platform {
	return Platform{System: runtime.GOOS, Architecture: runtime.GOARCH}
}
