package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/progress"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

// CommandContext holds the persistent flags every command reads.
type CommandContext struct {
	// Output control
	Quiet   bool
	Format  string
	NoColor bool

	// Observability
	LogLevel    string
	LogFormat   string
	MetricsFile string
}

// NewCommandContext extracts command context from cobra.Command flags.
// Commands call this in their RunE function:
//
//	func runCommand(cmd *cobra.Command, args []string) error {
//		cctx, err := NewCommandContext(cmd)
//		if err != nil {
//			return err
//		}
//		// Use cctx.Format, cctx.Quiet, etc.
//	}
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	flags := cmd.Flags()

	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return nil, err
	}
	format, err := flags.GetString("output")
	if err != nil {
		return nil, err
	}
	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return nil, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return nil, err
	}
	metricsFile, err := flags.GetString("metrics-file")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Quiet:       quiet,
		Format:      format,
		NoColor:     noColor,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		MetricsFile: metricsFile,
	}, nil
}

// Logger returns the process-wide logger configured by the root command.
func (c *CommandContext) Logger() *log.Logger {
	return log.L()
}

// Print renders data to w in the selected output format. Quiet suppresses
// text output only; json and yaml are always written.
func (c *CommandContext) Print(w io.Writer, data any) error {
	if c.Quiet && (c.Format == "" || c.Format == "text") {
		return nil
	}
	formatter, err := ux.NewFormatter(c.Format, &ux.FormatterOptions{Writer: w, NoColor: c.NoColor})
	if err != nil {
		return err
	}
	return formatter.Format(data)
}

// Progress returns a started indicator writing to w for text output on a
// terminal or in CI, nil otherwise. Callers finish a non-nil result with
// finishProgress.
func (c *CommandContext) Progress(w io.Writer, label string) *progress.Indicator {
	if c.Quiet || (c.Format != "" && c.Format != ux.FormatText) {
		return nil
	}
	if !ux.Interactive() && !progress.DetectCI() {
		return nil
	}
	ind := progress.NewIndicator(progress.Config{
		Writer:      w,
		Label:       label,
		ShowSpinner: true,
	})
	ind.Start()
	return ind
}

// finishProgress stops ind and, in CI logs, closes the step lines with a
// summary once the operation succeeded.
func finishProgress(ind *progress.Indicator, err error) {
	if ind == nil {
		return
	}
	ind.Stop()
	if err == nil && ind.IsCI() {
		ind.PrintSummary()
	}
}
