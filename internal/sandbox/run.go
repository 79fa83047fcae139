package sandbox

import (
	"github.com/felixgeelhaar/reprobox/internal/exec"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/runs"
)

// RunOptions selects what Run replays and how.
type RunOptions struct {
	// Runs is a run selector; empty selects every run.
	Runs string

	// Override replaces the recorded command of the single selected run.
	Override []string

	Exec exec.Options
}

// Run replays the selected runs inside the target's root through
// isolator and records them in the sidecar. Selection errors are
// reported before anything starts.
func (t *Target) Run(token *exec.StopToken, isolator exec.Isolator, opts RunOptions, logger *log.Logger) (*exec.RunResult, error) {
	if _, err := t.State(); err != nil {
		return nil, err
	}
	selection, err := runs.Select(t.Config, opts.Runs, opts.Override)
	if err != nil {
		return nil, err
	}
	executor := exec.NewExecutor(isolator, t.Tracker(), logger)
	return executor.Execute(token, exec.Request{
		Config:    t.Config,
		Selection: selection,
		Root:      t.Root(),
		Options:   opts.Exec,
	})
}
