package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/settings"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var rootCmd = &cobra.Command{
	Use:   "reprobox",
	Short: "Pack traced experiments and replay them in an isolated root",
	Long: `reprobox turns a traced experiment into a single pack file holding its
configuration, trace database and every file it touched. The pack can be
unpacked on another Linux host into a chroot target where the recorded
runs are replayed, input files swapped and output files collected.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: runRootPreRun,
}

// envSettings holds REPROBOX_* defaults for flag registration; envErr is
// returned by the first command run instead of failing at startup.
var envSettings, envErr = loadSettings()

func loadSettings() (settings.Settings, error) {
	s, err := settings.Load()
	if err != nil {
		return settings.Settings{LogLevel: "info", LogFormat: "text"}, err
	}
	return s, nil
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx and records the command
// in the metrics registry once it returns.
func ExecuteContext(ctx context.Context) error {
	started := time.Now()
	cmd, err := rootCmd.ExecuteContextC(ctx)
	finishObservability(cmd, started, err)
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", envSettings.LogLevel, "log level: debug, info, warn, error (env REPROBOX_LOG_LEVEL)")
	flags.String("log-format", envSettings.LogFormat, "log format: text or json (env REPROBOX_LOG_FORMAT)")
	flags.StringP("output", "o", ux.FormatText, "output format: "+strings.Join(ux.Formats(), ", "))
	flags.Bool("no-color", false, "disable colored output")
	flags.BoolP("quiet", "q", false, "suppress text output")
	flags.String("metrics-file", envSettings.MetricsFile, "write Prometheus metrics to this file after the command (env REPROBOX_METRICS_FILE)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(ux.Formats(), cobra.ShellCompDirectiveNoFileComp))
}

func runRootPreRun(cmd *cobra.Command, args []string) error {
	if envErr != nil {
		return envErr
	}
	return setupObservability(cmd)
}
