package exec

import (
	"io"
	"syscall"
)

// SpawnSpec describes the child an Isolator starts.
type SpawnSpec struct {
	// Command is shell text run by /bin/sh inside Root.
	Command string
	UID     int
	GID     int
	Root    string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Isolator starts a command confined to a root directory under the given
// credentials.
type Isolator interface {
	Spawn(spec SpawnSpec) (Handle, error)
}

// Handle is a running child process group.
type Handle interface {
	// Wait blocks until the child exits.
	Wait() (RunResult, error)

	// Stop forwards sig to the child's whole process group.
	Stop(sig syscall.Signal) error
}
