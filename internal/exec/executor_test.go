package exec

import (
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/runs"
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// fakeIsolator records spawns and hands out fakeHandles.
type fakeIsolator struct {
	spawned  []SpawnSpec
	spawnErr error
	result   RunResult
	block    bool
	handle   *fakeHandle
}

func (f *fakeIsolator) Spawn(spec SpawnSpec) (Handle, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.spawned = append(f.spawned, spec)
	f.handle = &fakeHandle{result: f.result, exited: make(chan struct{})}
	if !f.block {
		close(f.handle.exited)
	}
	return f.handle, nil
}

type fakeHandle struct {
	result  RunResult
	exited  chan struct{}
	stopped []syscall.Signal
}

func (h *fakeHandle) Wait() (RunResult, error) {
	<-h.exited
	return h.result, nil
}

func (h *fakeHandle) Stop(sig syscall.Signal) error {
	h.stopped = append(h.stopped, sig)
	h.result = RunResult{Signal: sig}
	close(h.exited)
	return nil
}

func newTracker(t *testing.T, runCount int) *state.Tracker {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, state.Write(dir, state.New(runCount, "blake3:test")))
	return state.NewTracker(dir)
}

func TestExecuteSingleRunUpdatesState(t *testing.T) {
	cfg := loadTwoRuns(t)
	tracker := newTracker(t, 2)
	iso := &fakeIsolator{result: RunResult{ExitCode: 0}}

	sel, err := runs.Select(cfg, "1", nil)
	require.NoError(t, err)

	e := NewExecutor(iso, tracker, log.Discard())
	result, err := e.Execute(NewStopToken(), Request{Config: cfg, Selection: sel, Root: "/srv/root"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Status())
	assert.False(t, result.Stopped)

	require.Len(t, iso.spawned, 1)
	assert.Equal(t, "/srv/root", iso.spawned[0].Root)
	assert.Equal(t, 1000, iso.spawned[0].UID)
	assert.Equal(t, 100, iso.spawned[0].GID)
	assert.Contains(t, iso.spawned[0].Command, "report.py")
	assert.NotContains(t, iso.spawned[0].Command, "prepare.py")

	st, err := tracker.Read()
	require.NoError(t, err)
	assert.True(t, st.Executed(1))
	assert.False(t, st.Executed(0))
	require.Len(t, st.Invocations, 1)
	assert.Equal(t, []int{1}, st.Invocations[0].Runs)
}

func TestExecuteFailureStillMarksRuns(t *testing.T) {
	cfg := loadTwoRuns(t)
	tracker := newTracker(t, 2)
	iso := &fakeIsolator{result: RunResult{ExitCode: 3}}

	sel, err := runs.Select(cfg, "", nil)
	require.NoError(t, err)

	result, err := NewExecutor(iso, tracker, log.Discard()).Execute(nil, Request{Config: cfg, Selection: sel})
	require.NoError(t, err, "a failing run is a result, not an error")
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Signaled())

	st, err := tracker.Read()
	require.NoError(t, err)
	assert.True(t, st.Executed(0))
	assert.True(t, st.Executed(1))
	assert.Equal(t, 3, st.Invocations[0].ExitCode)
}

func TestExecuteSpawnFailure(t *testing.T) {
	cfg := loadTwoRuns(t)
	tracker := newTracker(t, 2)
	iso := &fakeIsolator{spawnErr: fmt.Errorf("operation not permitted")}

	sel, err := runs.Select(cfg, "", nil)
	require.NoError(t, err)

	_, err = NewExecutor(iso, tracker, log.Discard()).Execute(NewStopToken(), Request{Config: cfg, Selection: sel})
	require.Error(t, err)
	assert.Equal(t, errors.KindExecution, errors.KindOf(err))

	st, err := tracker.Read()
	require.NoError(t, err)
	assert.False(t, st.Executed(0))
	assert.False(t, st.Executed(1))
	assert.Empty(t, st.Invocations)
}

func TestExecuteStopForwardsSignal(t *testing.T) {
	cfg := loadTwoRuns(t)
	tracker := newTracker(t, 2)
	iso := &fakeIsolator{block: true}

	sel, err := runs.Select(cfg, "0", nil)
	require.NoError(t, err)

	token := NewStopToken()
	type outcome struct {
		result *RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := NewExecutor(iso, tracker, log.Discard()).Execute(token, Request{Config: cfg, Selection: sel})
		done <- outcome{result, err}
	}()

	token.Trigger(syscall.SIGTERM)
	token.Trigger(syscall.SIGINT)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after stop")
	}
	require.NoError(t, got.err)
	assert.True(t, got.result.Signaled())
	assert.True(t, got.result.Stopped)
	assert.Equal(t, syscall.SIGTERM, got.result.Signal)
	assert.Equal(t, 0, got.result.ExitCode)
	assert.Equal(t, 128+int(syscall.SIGTERM), got.result.Status())
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, iso.handle.stopped)

	st, err := tracker.Read()
	require.NoError(t, err)
	assert.True(t, st.Executed(0))
	assert.Equal(t, int(syscall.SIGTERM), st.Invocations[0].Signal)
}

func TestExecuteWithoutSidecar(t *testing.T) {
	cfg := loadTwoRuns(t)
	iso := &fakeIsolator{}
	sel, err := runs.Select(cfg, "0", nil)
	require.NoError(t, err)

	_, err = NewExecutor(iso, state.NewTracker(t.TempDir()), log.Discard()).Execute(nil, Request{Config: cfg, Selection: sel})
	require.Error(t, err)
	assert.Equal(t, errors.KindUsage, errors.KindOf(err))
}

func TestStopTokenOnce(t *testing.T) {
	token := NewStopToken()
	assert.False(t, token.Triggered())

	token.Trigger(syscall.SIGINT)
	token.Trigger(syscall.SIGTERM)
	assert.True(t, token.Triggered())
	assert.Equal(t, syscall.SIGINT, token.Signal())
}

func TestRunResultString(t *testing.T) {
	assert.Equal(t, "exit code 2", RunResult{ExitCode: 2}.String())
	assert.Contains(t, RunResult{Signal: syscall.SIGKILL}.String(), "signal 9")
	assert.Equal(t, 137, RunResult{Signal: syscall.SIGKILL}.Status())
}
