//go:build linux

package exec

import (
	stderrors "errors"
	"fmt"
	osexec "os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ChrootIsolator runs commands with /bin/sh after chroot(2) into the
// root, in a new process group, as the requested uid/gid. It needs
// CAP_SYS_CHROOT and, to change identity, CAP_SETUID/CAP_SETGID.
type ChrootIsolator struct {
	// Shell is the interpreter inside the root. Defaults to /bin/sh.
	Shell string
}

// NewIsolator returns the isolator for this platform.
func NewIsolator() Isolator {
	return &ChrootIsolator{}
}

// Spawn starts spec.Command. The child's environment is empty; the
// command sets up each run's environment itself.
func (c *ChrootIsolator) Spawn(spec SpawnSpec) (Handle, error) {
	shell := c.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := osexec.Command(shell, "-c", spec.Command)
	cmd.Dir = "/"
	cmd.Env = []string{}
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Chroot:  spec.Root,
		Setpgid: true,
		Credential: &syscall.Credential{
			Uid: uint32(spec.UID),
			Gid: uint32(spec.GID),
		},
		Pdeathsig: syscall.SIGKILL,
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s in %s: %w", shell, spec.Root, err)
	}
	return &processHandle{cmd: cmd, started: started}, nil
}

type processHandle struct {
	cmd     *osexec.Cmd
	started time.Time
}

func (h *processHandle) Wait() (RunResult, error) {
	err := h.cmd.Wait()
	result := RunResult{Duration: time.Since(h.started)}
	if err == nil {
		return result, nil
	}

	var exitErr *osexec.ExitError
	if !stderrors.As(err, &exitErr) {
		return result, fmt.Errorf("wait for child: %w", err)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		result.Signal = status.Signal()
		return result, nil
	}
	result.ExitCode = exitErr.ExitCode()
	return result, nil
}

func (h *processHandle) Stop(sig syscall.Signal) error {
	// Setpgid makes the child the leader of a group numbered by its pid.
	err := unix.Kill(-h.cmd.Process.Pid, sig)
	if err != nil && !stderrors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", h.cmd.Process.Pid, err)
	}
	return nil
}
