package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var downloadCmd = &cobra.Command{
	Use:   "download <target> [name: | name:localpath]...",
	Short: "Copy output files out of the target",
	Long: `Copy output files produced by replayed runs out of the root.

  name:            write the output called name to standard output
  name:localpath   copy it to localpath

With --all every output is copied into the current directory under its
base name. Without file specifications the output files are listed.`,
	Example: `  reprobox sandbox download ./replay result.txt:
  reprobox sandbox download ./replay result.txt:/tmp/result.txt
  reprobox sandbox download ./replay --all`,
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeFileSpecs((*config.FileEntry).IsOutput),
	RunE:              runDownload,
}

var downloadAll bool

func init() {
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "download every output file to the current directory")

	sandboxCmd.AddCommand(downloadCmd)
}

// downloadSpec is one parsed download argument. An empty LocalPath means
// standard output.
type downloadSpec struct {
	Name      string
	LocalPath string
}

// parseDownloadSpec splits on the first colon, so local paths may contain
// colons but output names may not.
func parseDownloadSpec(arg string) (downloadSpec, error) {
	name, local, ok := strings.Cut(arg, ":")
	if !ok || name == "" {
		return downloadSpec{}, invalidFileSpec(arg, "name: or name:localpath")
	}
	return downloadSpec{Name: name, LocalPath: local}, nil
}

// outputsView lists output files.
type outputsView []sandbox.OutputStatus

func (v outputsView) RenderText(s *ux.Styles) string {
	if len(v) == 0 {
		return s.Muted.Render("No output files") + "\n"
	}
	rows := make([][]string, 0, len(v))
	for _, out := range v {
		rows = append(rows, []string{out.Name, out.Path, joinInts(out.WrittenBy), s.Mark(out.Present)})
	}
	return s.Table([]string{"NAME", "PATH", "WRITTEN BY", "PRESENT"}, rows)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	logger := cctx.Logger()

	target, err := sandbox.Open(args[0])
	if err != nil {
		return err
	}

	specs := make([]downloadSpec, 0, len(args)-1)
	for _, arg := range args[1:] {
		spec, err := parseDownloadSpec(arg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	m := metrics.GetDefault()
	if downloadAll {
		if len(specs) > 0 {
			return errors.New(errors.ErrCodeUsageFlags, "--all cannot be combined with file specifications")
		}
		written, err := target.DownloadAll(".")
		if err != nil {
			return err
		}
		m.Downloads.Add(float64(len(written)))
		for _, p := range written {
			logger.Info("output downloaded", "path", p)
		}
		return nil
	}

	if len(specs) == 0 {
		outputs, err := target.ListOutputs()
		if err != nil {
			return err
		}
		return cctx.Print(cmd.OutOrStdout(), outputsView(outputs))
	}

	for _, spec := range specs {
		if spec.LocalPath == "" {
			err = target.Download(spec.Name, cmd.OutOrStdout())
		} else {
			err = target.DownloadFile(spec.Name, spec.LocalPath)
		}
		if err != nil {
			return err
		}
		m.Downloads.Inc()
		logger.Debug("output downloaded", "name", spec.Name, "to", spec.LocalPath)
	}
	return nil
}
