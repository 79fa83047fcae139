package exec

import (
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/felixgeelhaar/reprobox/internal/exitcode"
)

// Options controls how recorded runs are replayed.
type Options struct {
	// EnableX11 points DISPLAY at X11Display (default 15).
	EnableX11  bool
	X11Display *int
	// X11Cookie is the hex MIT-MAGIC-COOKIE-1 installed with xauth.
	X11Cookie string

	// PassEnv lists regular expressions; host variables whose name matches
	// one of them are copied into every run's environment.
	PassEnv []string

	// EnvironmentOverrides are set last and win over everything else.
	EnvironmentOverrides map[string]string

	// HostEnv is the caller's environment as KEY=VALUE pairs, consulted
	// only by PassEnv. Defaults to os.Environ.
	HostEnv []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult is how the combined invocation ended: a normal exit code or
// the number of the signal that killed it, never both.
type RunResult struct {
	ExitCode int            `json:"exit_code"`
	Signal   syscall.Signal `json:"signal,omitempty"`
	Duration time.Duration  `json:"duration"`

	// Stopped is set when a stop was requested while the child ran.
	Stopped bool `json:"stopped,omitempty"`
}

// Signaled reports whether the invocation was killed by a signal.
func (r RunResult) Signaled() bool {
	return r.Signal != 0
}

// Status is the process-level exit code the result maps to.
func (r RunResult) Status() int {
	if r.Signaled() {
		return exitcode.FromSignal(int(r.Signal))
	}
	return r.ExitCode
}

func (r RunResult) String() string {
	if r.Signaled() {
		return fmt.Sprintf("killed by signal %d (%s)", int(r.Signal), r.Signal)
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// Invocation is the single child process that replays a selection.
type Invocation struct {
	// Command is passed to "/bin/sh -c" inside the root.
	Command string
	UID     int
	GID     int
	Runs    []int
}
