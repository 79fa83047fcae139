package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reprobox/internal/bundle/bundletest"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/exec"
	"github.com/felixgeelhaar/reprobox/internal/exitcode"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
)

// resetFlags restores every flag of c and its subcommands to its default,
// since commands keep flag values in package variables between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := executeStreams(t, args...)
	return stdout, err
}

// executeStreams is execute that also returns what went to stderr.
func executeStreams(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	err := ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// fakeIsolator records spawns and ends every run with result.
type fakeIsolator struct {
	specs  []exec.SpawnSpec
	result exec.RunResult
}

func (f *fakeIsolator) Spawn(spec exec.SpawnSpec) (exec.Handle, error) {
	f.specs = append(f.specs, spec)
	return fakeHandle{result: f.result}, nil
}

type fakeHandle struct {
	result exec.RunResult
}

func (h fakeHandle) Wait() (exec.RunResult, error) { return h.result, nil }
func (h fakeHandle) Stop(sig syscall.Signal) error { return nil }

func useIsolator(t *testing.T, iso exec.Isolator) {
	t.Helper()
	prev := newIsolator
	newIsolator = func() exec.Isolator { return iso }
	t.Cleanup(func() { newIsolator = prev })
}

// setUpTarget packs a fixture through the CLI and unpacks it.
func setUpTarget(t *testing.T) (*bundletest.Fixture, string) {
	t.Helper()
	fx := bundletest.New(t)
	pack := filepath.Join(fx.Root, "cli.rpz")

	out, err := execute(t, "pack", pack, "--dir", fx.TraceDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Pack created")
	assert.FileExists(t, pack)

	target := filepath.Join(t.TempDir(), "replay")
	out, err = execute(t, "sandbox", "setup", "--dont-preserve-owner", "--skip-compatibility-check", pack, target)
	require.NoError(t, err)
	assert.Contains(t, out, "Target ready")
	return fx, target
}

func TestSandboxLifecycle(t *testing.T) {
	fx, target := setUpTarget(t)

	out, err := execute(t, "sandbox", "upload", target)
	require.NoError(t, err)
	assert.Contains(t, out, "data.csv")
	assert.Contains(t, out, "original")

	replacement := filepath.Join(t.TempDir(), "new.csv")
	require.NoError(t, os.WriteFile(replacement, []byte("x,y\n"), 0o644))
	_, err = execute(t, "sandbox", "upload", target, replacement+":data.csv")
	require.NoError(t, err)

	tgt, err := sandbox.Open(target)
	require.NoError(t, err)
	hostData, err := tgt.HostPath(fx.Path("exp/data.csv"))
	require.NoError(t, err)
	data, err := os.ReadFile(hostData)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))

	iso := &fakeIsolator{}
	useIsolator(t, iso)
	_, err = execute(t, "sandbox", "run", target, "report", "--set-env", "LANG=en_US.UTF-8")
	require.NoError(t, err)
	require.Len(t, iso.specs, 1)
	assert.Contains(t, iso.specs[0].Command, "LANG=en_US.UTF-8")
	assert.Equal(t, tgt.Root(), iso.specs[0].Root)

	out, err = execute(t, "sandbox", "download", target, "result.txt:")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, err = execute(t, "-o", "json", "sandbox", "status", target)
	require.NoError(t, err)
	var status sandbox.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status.Runs, 2)
	assert.False(t, status.Runs[0].Executed)
	assert.True(t, status.Runs[1].Executed)
	require.Len(t, status.Invocations, 1)
	assert.Equal(t, []int{1}, status.Invocations[0].Runs)

	_, err = execute(t, "sandbox", "upload", target, ":data.csv")
	require.NoError(t, err)
	data, err = os.ReadFile(hostData)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	out, err = execute(t, "sandbox", "destroy", target)
	require.NoError(t, err)
	assert.Contains(t, out, "destroyed")
	assert.NoDirExists(t, target)

	out, err = execute(t, "sandbox", "destroy", target)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to destroy")
}

func TestRunPassesThroughStatus(t *testing.T) {
	_, target := setUpTarget(t)

	useIsolator(t, &fakeIsolator{result: exec.RunResult{ExitCode: 3}})
	_, err := execute(t, "sandbox", "run", target)
	require.Error(t, err)
	assert.Equal(t, 3, exitcode.DetermineExitCode(err))

	useIsolator(t, &fakeIsolator{result: exec.RunResult{Signal: syscall.SIGKILL}})
	_, err = execute(t, "sandbox", "run", target, "0")
	require.Error(t, err)
	assert.Equal(t, 137, exitcode.DetermineExitCode(err))
}

func TestRunOverrideNeedsSingleRun(t *testing.T) {
	_, target := setUpTarget(t)
	iso := &fakeIsolator{}
	useIsolator(t, iso)

	_, err := execute(t, "sandbox", "run", target, "--", "/bin/sh", "-c", "true")
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.DetermineExitCode(err))
	assert.Empty(t, iso.specs)

	_, err = execute(t, "sandbox", "run", target, "prepare", "--", "/bin/echo", "hi")
	require.NoError(t, err)
	require.Len(t, iso.specs, 1)
	assert.Contains(t, iso.specs[0].Command, "/bin/echo hi")
}

func TestSandboxErrorsBeforeSpawn(t *testing.T) {
	iso := &fakeIsolator{}
	useIsolator(t, iso)

	_, err := execute(t, "sandbox", "run", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.KindUsage, errors.KindOf(err))
	assert.Equal(t, exitcode.Usage, exitcode.DetermineExitCode(err))
	assert.Empty(t, iso.specs)

	_, target := setUpTarget(t)
	_, err = execute(t, "sandbox", "run", target, "9")
	require.Error(t, err)
	assert.Equal(t, exitcode.Config, exitcode.DetermineExitCode(err))

	_, err = execute(t, "sandbox", "download", target, "nosuch:")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUsageUnknownFile, errors.CodeOf(err))

	_, err = execute(t, "sandbox", "setup", "--preserve-owner", "--dont-preserve-owner", "x.rpz", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUsageFlags, errors.CodeOf(err))
}

func TestPackRefusesExistingTarget(t *testing.T) {
	fx := bundletest.New(t)
	pack := filepath.Join(fx.Root, "exists.rpz")
	require.NoError(t, os.WriteFile(pack, []byte("keep"), 0o644))

	_, err := execute(t, "pack", pack, "-d", fx.TraceDir)
	require.Error(t, err)
	assert.Equal(t, exitcode.ArchiveExists, exitcode.DetermineExitCode(err))

	data, err := os.ReadFile(pack)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestPackSummaryInCI(t *testing.T) {
	t.Setenv("CI", "true")
	fx := bundletest.New(t)
	pack := filepath.Join(fx.Root, "ci.rpz")

	_, stderr, err := executeStreams(t, "pack", pack, "--dir", fx.TraceDir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Packing: ")
	assert.Contains(t, stderr, "✓ Packing: ")

	_, stderr, err = executeStreams(t, "-o", "json", "pack", filepath.Join(fx.Root, "ci2.rpz"), "--dir", fx.TraceDir)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "Packing")
}

func TestPackWithoutTrace(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "pack", filepath.Join(dir, "none.rpz"), "--dir", filepath.Join(dir, ".reprozip-trace"))
	require.Error(t, err)
	assert.Equal(t, exitcode.MissingInput, exitcode.DetermineExitCode(err))
	boxErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Contains(t, boxErr.Suggestions, "Trace an experiment first; its configuration goes to "+filepath.Join(dir, ".reprozip-trace", "config.yml"))
}

func TestSignAndVerify(t *testing.T) {
	fx := bundletest.New(t)
	pack := fx.Pack(t)
	key, authorized := bundletest.GenerateSSHKey(t)

	out, err := execute(t, "sign", pack, "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "Pack signed")

	out, err = execute(t, "-o", "json", "verify", pack, "--authorized-keys", authorized)
	require.NoError(t, err)
	var view signatureView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.True(t, view.Verified)
	assert.Contains(t, view.Fingerprint, "SHA256:")
}

func TestInfo(t *testing.T) {
	fx := bundletest.New(t)
	pack := fx.Pack(t)

	out, err := execute(t, "-o", "json", "info", pack)
	require.NoError(t, err)
	var view infoView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Runs, 2)
	assert.Equal(t, "prepare", view.Runs[0].ID)
	require.Len(t, view.Packages, 2)
	assert.True(t, view.Packages[0].PackFiles)
	assert.False(t, view.Packages[1].PackFiles)
	assert.False(t, view.Signed)
	assert.Nil(t, view.Trace)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "reprobox dev\n", out)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "version")
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.DetermineExitCode(err))
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reprobox.prom")

	_, err := execute(t, "--metrics-file", path, "version")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `reprobox_command_executions_total{command="reprobox version",success="true"}`)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := execute(t, "-o", "xml", "version")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUsageFlags, errors.CodeOf(err))
	assert.Equal(t, exitcode.Usage, exitcode.DetermineExitCode(err))
}
