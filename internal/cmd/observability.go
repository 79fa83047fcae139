package cmd

import (
	stderrors "errors"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/exitcode"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

// setupObservability configures the process-wide logger and metrics from
// the persistent flags. Logs always go to stderr so stdout stays usable
// for command output.
func setupObservability(cmd *cobra.Command) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	cfg, err := log.ParseConfig(cctx.LogLevel, cctx.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return errors.Wrap(errors.ErrCodeUsageFlags, "invalid logging flags", err).
			WithSuggestion("Use --log-level debug|info|warn|error and --log-format text|json")
	}
	log.SetDefault(log.New(cfg))
	metrics.InitDefault()

	if !slices.Contains(ux.Formats(), cctx.Format) {
		return errors.Newf(errors.ErrCodeUsageFlags, "unknown output format %q", cctx.Format).
			WithSuggestion("Use --output " + strings.Join(ux.Formats(), "|"))
	}
	return nil
}

// finishObservability records the finished command and, when a metrics
// file was requested, writes the registry to it.
func finishObservability(cmd *cobra.Command, started time.Time, runErr error) {
	if cmd == nil {
		return
	}
	m := metrics.GetDefault()
	if m == nil {
		return
	}
	m.RecordCommand(cmd.CommandPath(), time.Since(started), metricsCode(runErr))

	path, err := cmd.Flags().GetString("metrics-file")
	if err != nil || path == "" {
		return
	}
	if err := metrics.WriteDefault(path); err != nil {
		log.L().WithError(err).Warn("failed to write metrics file", "path", path)
	}
}

// metricsCode labels a failed command. A replayed run that exited non-zero
// is not a failure of the command itself.
func metricsCode(err error) string {
	if err == nil {
		return ""
	}
	var status *exitcode.StatusError
	if stderrors.As(err, &status) {
		return ""
	}
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	return "GENERAL"
}
