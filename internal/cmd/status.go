package cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var statusCmd = &cobra.Command{
	Use:               "status <target>",
	Short:             "Show runs, inputs and outputs of a target",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTargetDir,
	RunE:              runStatus,
}

// statusHistory is how many invocations the text view shows.
const statusHistory = 5

func init() {
	sandboxCmd.AddCommand(statusCmd)
}

// statusView renders sandbox.Status for the terminal.
type statusView struct {
	*sandbox.Status
}

func (v statusView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Target "+v.Target) + "\n")
	b.WriteString(s.Field("Pack digest", v.PackDigest))

	b.WriteString("\n")
	runs := make([][]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		id := r.ID
		if id == "" {
			id = "-"
		}
		runs = append(runs, []string{strconv.Itoa(r.Index), id, s.Mark(r.Executed), r.Command})
	}
	b.WriteString(s.Table([]string{"RUN", "ID", "DONE", "COMMAND"}, runs))

	b.WriteString("\n")
	b.WriteString(inputsView(v.Inputs).RenderText(s))
	b.WriteString("\n")
	b.WriteString(outputsView(v.Outputs).RenderText(s))

	if n := len(v.Invocations); n > 0 {
		b.WriteString("\n" + s.Title.Render("Recent replays") + "\n")
		start := 0
		if n > statusHistory {
			start = n - statusHistory
		}
		rows := make([][]string, 0, n-start)
		for _, inv := range v.Invocations[start:] {
			result := "exit " + strconv.Itoa(inv.ExitCode)
			if inv.Signal != 0 {
				result = "signal " + strconv.Itoa(inv.Signal)
			}
			rows = append(rows, []string{
				inv.StartedAt.Format("2006-01-02 15:04:05"),
				joinInts(inv.Runs),
				result,
				inv.Duration.Round(time.Millisecond).String(),
			})
		}
		b.WriteString(s.Table([]string{"STARTED", "RUNS", "RESULT", "DURATION"}, rows))
	}
	return b.String()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	target, err := sandbox.Open(args[0])
	if err != nil {
		return err
	}
	status, err := target.Status()
	if err != nil {
		return err
	}
	if cctx.Format == "json" || cctx.Format == "yaml" {
		return cctx.Print(cmd.OutOrStdout(), status)
	}
	return cctx.Print(cmd.OutOrStdout(), statusView{status})
}
