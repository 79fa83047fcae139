package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var packCmd = &cobra.Command{
	Use:   "pack [target]",
	Short: "Create a pack from a trace directory",
	Long: `Create a pack from the configuration and trace database left by the
tracer. The pack holds the configuration, the trace database and every
file of the packages marked for packing plus all other recorded files.

The target (default experiment.rpz) must not exist. Without --dir the
trace directory is looked up in the current directory and its parents.`,
	Example: `  reprobox pack
  reprobox pack analysis.rpz --dir /data/run1/.reprozip-trace`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPack,
}

var packDir string

func init() {
	packCmd.Flags().StringVarP(&packDir, "dir", "d", "", "trace directory (default: discovered "+ux.DefaultTraceDir+")")

	rootCmd.AddCommand(packCmd)
}

// packView is what pack prints.
type packView struct {
	Path     string `json:"path" yaml:"path"`
	TraceDir string `json:"trace_dir" yaml:"trace_dir"`
	Members  int    `json:"members" yaml:"members"`
	HasTrace bool   `json:"has_trace" yaml:"has_trace"`
	Size     int64  `json:"size" yaml:"size"`
	Digest   string `json:"digest" yaml:"digest"`
}

func (v packView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Pack created") + "\n")
	b.WriteString(s.Field("Path", v.Path))
	b.WriteString(s.Field("Members", v.Members))
	b.WriteString(s.Field("Trace", s.Mark(v.HasTrace)))
	b.WriteString(s.Field("Size", humanBytes(v.Size)))
	b.WriteString(s.Field("Digest", v.Digest))
	b.WriteString("\n" + s.Muted.Render("Next: reprobox sandbox setup "+v.Path+" <target>") + "\n")
	return b.String()
}

func runPack(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	logger := cctx.Logger()

	pd := ux.NewPathDefaults()
	if packDir != "" {
		pd.TraceDir = packDir
	} else {
		pd = ux.NewPathDefaultsWithDiscovery()
	}

	target := ux.DefaultPackName
	if len(args) == 1 {
		target = args[0]
	}

	logger.Debug("packing", "trace_dir", pd.TraceDir, "target", target)
	packer := bundle.NewPacker(logger)
	ind := cctx.Progress(cmd.ErrOrStderr(), "Packing")
	if ind != nil {
		packer.OnMember = ind.Update
	}
	result, err := packer.Pack(cmd.Context(), target, pd.TraceDir)
	finishProgress(ind, err)
	if err != nil {
		if boxErr, ok := errors.As(err); ok && boxErr.Code == errors.ErrCodeInputConfig {
			boxErr.WithSuggestion(ux.SuggestNextSteps(pd))
		}
		return err
	}
	metrics.GetDefault().RecordPack(result.Members, result.Size, result.HasTrace)

	abs, err := filepath.Abs(pd.TraceDir)
	if err != nil {
		abs = pd.TraceDir
	}
	return cctx.Print(cmd.OutOrStdout(), packView{
		Path:     result.Path,
		TraceDir: abs,
		Members:  result.Members,
		HasTrace: result.HasTrace,
		Size:     result.Size,
		Digest:   result.Digest,
	})
}
