package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <target> [localpath:name | :name]...",
	Short: "Replace input files inside the target",
	Long: `Replace input files of the recorded runs before replaying them.

  localpath:name   copy the local file over the input called name
  :name            put the packed original of name back

Without file specifications the input files and what currently replaces
them are listed.`,
	Example: `  reprobox sandbox upload ./replay
  reprobox sandbox upload ./replay ~/new-data.csv:data.csv
  reprobox sandbox upload ./replay :data.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	sandboxCmd.AddCommand(uploadCmd)
}

// uploadSpec is one parsed upload argument. An empty LocalPath restores
// the original.
type uploadSpec struct {
	LocalPath string
	Name      string
}

// parseUploadSpec splits on the last colon, so local paths may contain
// colons but input names may not.
func parseUploadSpec(arg string) (uploadSpec, error) {
	i := strings.LastIndex(arg, ":")
	if i < 0 || i == len(arg)-1 {
		return uploadSpec{}, invalidFileSpec(arg, "localpath:name or :name")
	}
	return uploadSpec{LocalPath: arg[:i], Name: arg[i+1:]}, nil
}

// inputsView lists input files.
type inputsView []sandbox.InputStatus

func (v inputsView) RenderText(s *ux.Styles) string {
	if len(v) == 0 {
		return s.Muted.Render("No input files") + "\n"
	}
	rows := make([][]string, 0, len(v))
	for _, in := range v {
		current := "original"
		if in.Substitution != nil && !in.Substitution.Original {
			current = in.Substitution.Source
		}
		rows = append(rows, []string{in.Name, in.Path, joinInts(in.ReadBy), current})
	}
	return s.Table([]string{"NAME", "PATH", "READ BY", "CURRENT"}, rows)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	logger := cctx.Logger()

	target, err := sandbox.Open(args[0])
	if err != nil {
		return err
	}

	specs := make([]uploadSpec, 0, len(args)-1)
	for _, arg := range args[1:] {
		spec, err := parseUploadSpec(arg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		inputs, err := target.ListInputs()
		if err != nil {
			return err
		}
		return cctx.Print(cmd.OutOrStdout(), inputsView(inputs))
	}

	m := metrics.GetDefault()
	for _, spec := range specs {
		if spec.LocalPath == "" {
			if _, err := target.Restore(spec.Name, logger); err != nil {
				return err
			}
			m.Uploads.WithLabelValues("restore").Inc()
			continue
		}
		if _, err := target.Upload(spec.LocalPath, spec.Name, logger); err != nil {
			return err
		}
		m.Uploads.WithLabelValues("replace").Inc()
	}
	return nil
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
