// Package exec replays recorded runs inside an isolated root.
package exec

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/runs"
	"github.com/felixgeelhaar/reprobox/internal/state"
	"github.com/felixgeelhaar/reprobox/internal/x11"
)

// RunRecorder persists which runs an invocation executed.
type RunRecorder interface {
	MarkExecuted(runs []int, inv state.Invocation) (*state.ReplayState, error)
}

// Request is one replay of a selection against a root.
type Request struct {
	Config    *config.Config
	Selection runs.Selection
	Root      string
	Options   Options
}

// Executor replays selections through an Isolator and records them.
type Executor struct {
	Isolator Isolator
	Recorder RunRecorder
	Logger   *log.Logger
}

// NewExecutor returns an executor using isolator and recorder.
func NewExecutor(isolator Isolator, recorder RunRecorder, logger *log.Logger) *Executor {
	return &Executor{Isolator: isolator, Recorder: recorder, Logger: logger}
}

func (e *Executor) logger() *log.Logger {
	if e.Logger == nil {
		return log.L()
	}
	return e.Logger
}

// Plan builds the combined invocation for req without running it.
//
// Runs are chained in selection order. The uid/gid of the last selected run
// applies to the whole invocation.
func (e *Executor) Plan(req Request) (*Invocation, error) {
	if len(req.Selection.Indexes) == 0 {
		return nil, errors.New(errors.ErrCodeUsageArgument, "no runs selected")
	}
	opts := req.Options

	handler, err := x11.NewHandler(opts.EnableX11, opts.X11Display, opts.X11Cookie)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUsageArgument, "invalid X11 options", err)
	}
	hostEnv := opts.HostEnv
	if hostEnv == nil {
		hostEnv = os.Environ()
	}
	envs, err := newEnvBuilder(opts, handler, hostEnv)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{Runs: append([]int(nil), req.Selection.Indexes...)}
	commands := make([]string, 0, len(req.Selection.Indexes))
	for _, i := range req.Selection.Indexes {
		if i < 0 || i >= len(req.Config.Runs) {
			return nil, errors.NewRunRangeError(i, len(req.Config.Runs))
		}
		run := req.Config.Runs[i]
		commands = append(commands, RunCommand(run, envs.build(run), req.Selection.Override))
		inv.UID, inv.GID = run.UID, run.GID
	}

	for _, i := range req.Selection.Indexes {
		run := req.Config.Runs[i]
		if run.UID != inv.UID || run.GID != inv.GID {
			e.logger().Warn("selected runs were recorded under different users; using the last run's",
				"run", i, "run_uid", run.UID, "run_gid", run.GID, "uid", inv.UID, "gid", inv.GID)
			break
		}
	}

	inv.Command = CombineCommands(handler.InitCommands(), commands)
	return inv, nil
}

// Execute replays req and blocks until the child exits. Triggering token
// forwards its signal to the child's process group; Execute still waits for
// the child to end. Every selected run is recorded as executed before
// Execute returns, whatever the outcome, unless the child never started.
func (e *Executor) Execute(token *StopToken, req Request) (*RunResult, error) {
	logger := e.logger()
	if token == nil {
		token = NewStopToken()
	}

	inv, err := e.Plan(req)
	if err != nil {
		return nil, err
	}

	logger.Info("replaying runs", "runs", inv.Runs, "uid", inv.UID, "gid", inv.GID, "root", req.Root)
	logger.Debug("combined command", "command", inv.Command)

	started := time.Now()
	handle, err := e.Isolator.Spawn(SpawnSpec{
		Command: inv.Command,
		UID:     inv.UID,
		GID:     inv.GID,
		Root:    req.Root,
		Stdin:   req.Options.Stdin,
		Stdout:  req.Options.Stdout,
		Stderr:  req.Options.Stderr,
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewSpawnError(err)
	}

	type waited struct {
		result RunResult
		err    error
	}
	done := make(chan waited, 1)
	go func() {
		result, err := handle.Wait()
		done <- waited{result, err}
	}()

	var w waited
	select {
	case w = <-done:
	case <-token.Done():
		sig := token.Signal()
		logger.Warn("stop requested, signalling child process group", "signal", sig.String())
		if err := handle.Stop(sig); err != nil {
			logger.WithError(err).Error("failed to signal child")
		}
		w = <-done
	}
	result := w.result
	result.Stopped = token.Triggered()
	if result.Duration == 0 {
		result.Duration = time.Since(started)
	}

	record := state.Invocation{
		ID:        uuid.NewString(),
		Runs:      inv.Runs,
		StartedAt: started.UTC(),
		Duration:  result.Duration,
		ExitCode:  result.ExitCode,
		Signal:    int(result.Signal),
	}
	if e.Recorder != nil {
		if _, err := e.Recorder.MarkExecuted(inv.Runs, record); err != nil {
			return &result, fmt.Errorf("record executed runs: %w", err)
		}
	}

	if w.err != nil {
		return &result, errors.Wrap(errors.ErrCodeExecSpawn, "lost track of the replayed process", w.err)
	}

	logger.Info("replay finished", "runs", inv.Runs, "result", result.String(), "duration", result.Duration)
	return &result, nil
}
