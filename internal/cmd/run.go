package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/exec"
	"github.com/felixgeelhaar/reprobox/internal/exitcode"
	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run <target> [runs] [-- command...]",
	Short: "Replay recorded runs inside the target",
	Long: `Replay recorded runs inside the target's isolated root, in one child
process, in the order selected. Runs are selected by index, inclusive
range or id, separated by commas; all runs are replayed by default.

Arguments after -- replace the recorded command line of the selected run;
exactly one run must be selected then.

The exit status is the replayed command's status, or 128 plus the signal
that killed it. SIGINT and SIGTERM are forwarded to the replayed process
group. Replaying needs root for chroot(2).`,
	Example: `  sudo reprobox sandbox run ./replay
  sudo reprobox sandbox run ./replay 0-1,report
  sudo reprobox sandbox run ./replay prepare -- /bin/sh -i
  sudo reprobox sandbox run ./replay --enable-x11 --pass-env '^LC_'`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeRuns,
	RunE:              runRun,
}

var (
	runEnableX11  bool
	runX11Display int
	runX11Cookie  string
	runPassEnv    []string
	runSetEnv     []string
)

// newIsolator is replaced in tests.
var newIsolator = exec.NewIsolator

func init() {
	runCmd.Flags().BoolVar(&runEnableX11, "enable-x11", false, "point DISPLAY at the host X server")
	runCmd.Flags().IntVar(&runX11Display, "x11-display", 0, "display number to use (default 15)")
	runCmd.Flags().StringVar(&runX11Cookie, "x11-cookie", "", "hex MIT-MAGIC-COOKIE-1 installed with xauth before the runs")
	runCmd.Flags().StringArrayVar(&runPassEnv, "pass-env", nil, "copy host variables whose name matches this regular expression (repeatable)")
	runCmd.Flags().StringArrayVar(&runSetEnv, "set-env", nil, "set VAR=VALUE in every run's environment (repeatable)")

	sandboxCmd.AddCommand(runCmd)
}

// splitRunArgs separates target, run selector and the override command
// given after "--".
func splitRunArgs(args []string, dash int) (target, selector string, override []string, err error) {
	positional := args
	if dash >= 0 {
		positional, override = args[:dash], args[dash:]
		if len(override) == 0 {
			return "", "", nil, errors.New(errors.ErrCodeUsageArgument, "no command given after --")
		}
	}
	switch len(positional) {
	case 1:
		return positional[0], "", override, nil
	case 2:
		return positional[0], positional[1], override, nil
	default:
		return "", "", nil, errors.Newf(errors.ErrCodeUsageArgument, "expected <target> [runs], got %d arguments", len(positional)).
			WithSuggestion("Put the replacement command after --")
	}
}

// parseSetEnv turns VAR=VALUE pairs into a map. Later pairs win.
func parseSetEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errors.Newf(errors.ErrCodeUsageArgument, "invalid --set-env %q", pair).
				WithSuggestion("Use --set-env VAR=VALUE")
		}
		out[k] = v
	}
	return out, nil
}

// forwardSignals triggers token on SIGINT or SIGTERM until the returned
// function is called.
func forwardSignals(token *exec.StopToken) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			token.Trigger(sig.(syscall.Signal))
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	logger := cctx.Logger()

	targetDir, selector, override, err := splitRunArgs(args, cmd.ArgsLenAtDash())
	if err != nil {
		return err
	}
	env, err := parseSetEnv(runSetEnv)
	if err != nil {
		return err
	}

	opts := sandbox.RunOptions{
		Runs:     selector,
		Override: override,
		Exec: exec.Options{
			EnableX11:            runEnableX11,
			X11Cookie:            runX11Cookie,
			PassEnv:              runPassEnv,
			EnvironmentOverrides: env,
			Stdin:                cmd.InOrStdin(),
			Stdout:               cmd.OutOrStdout(),
			Stderr:               cmd.ErrOrStderr(),
		},
	}
	if cmd.Flags().Changed("x11-display") {
		display := runX11Display
		opts.Exec.X11Display = &display
	}

	target, err := sandbox.Open(targetDir)
	if err != nil {
		return err
	}

	token := exec.NewStopToken()
	stop := forwardSignals(token)
	defer stop()

	result, err := target.Run(token, newIsolator(), opts, logger)
	if result != nil {
		recordReplay(target, result)
	}
	if err != nil {
		return err
	}
	if status := result.Status(); status != exitcode.Success {
		return &exitcode.StatusError{Code: status}
	}
	return nil
}

// recordReplay feeds the last recorded invocation into the metrics.
func recordReplay(target *sandbox.Target, result *exec.RunResult) {
	st, err := target.State()
	if err != nil || len(st.Invocations) == 0 {
		return
	}
	outcome := "success"
	switch {
	case result.Stopped:
		outcome = "stopped"
	case result.Signaled():
		outcome = "signaled"
	case result.ExitCode != 0:
		outcome = "failure"
	}
	inv := st.Invocations[len(st.Invocations)-1]
	metrics.GetDefault().RecordReplay(inv.Runs, result.Duration, outcome)
}
