package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var infoCmd = &cobra.Command{
	Use:   "info <pack>",
	Short: "Describe a pack",
	Long: `Describe a pack without unpacking it: recorded runs, packages, payload
size, digest, signature and the integrity of the trace database.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

type infoRun struct {
	Index        int    `json:"index" yaml:"index"`
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Command      string `json:"command" yaml:"command"`
	Architecture string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	System       string `json:"system,omitempty" yaml:"system,omitempty"`
}

type infoPackage struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	PackFiles bool   `json:"packfiles" yaml:"packfiles"`
	Files     int    `json:"files" yaml:"files"`
}

// infoView is what info prints.
type infoView struct {
	Path       string            `json:"path" yaml:"path"`
	Digest     string            `json:"digest" yaml:"digest"`
	Signed     bool              `json:"signed" yaml:"signed"`
	Compatible bool              `json:"compatible" yaml:"compatible"`
	Runs       []infoRun         `json:"runs" yaml:"runs"`
	Packages   []infoPackage     `json:"packages" yaml:"packages"`
	OtherFiles int               `json:"other_files" yaml:"other_files"`
	Members    int               `json:"members" yaml:"members"`
	Trace      *bundle.TraceInfo `json:"trace,omitempty" yaml:"trace,omitempty"`
}

func (v infoView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Pack "+v.Path) + "\n")
	b.WriteString(s.Field("Digest", v.Digest))
	b.WriteString(s.Field("Signed", s.Mark(v.Signed)))
	b.WriteString(s.Field("Runs on this host", s.Mark(v.Compatible)))
	b.WriteString(s.Field("Payload members", v.Members))
	b.WriteString(s.Field("Other files", v.OtherFiles))

	b.WriteString("\n")
	runs := make([][]string, 0, len(v.Runs))
	for _, r := range v.Runs {
		runs = append(runs, []string{strconv.Itoa(r.Index), r.ID, r.Architecture, r.Command})
	}
	b.WriteString(s.Table([]string{"RUN", "ID", "ARCH", "COMMAND"}, runs))

	if len(v.Packages) > 0 {
		b.WriteString("\n")
		pkgs := make([][]string, 0, len(v.Packages))
		for _, p := range v.Packages {
			pkgs = append(pkgs, []string{p.Name, p.Version, s.Mark(p.PackFiles), strconv.Itoa(p.Files)})
		}
		b.WriteString(s.Table([]string{"PACKAGE", "VERSION", "PACKED", "FILES"}, pkgs))
	}

	b.WriteString("\n")
	if v.Trace == nil {
		b.WriteString(s.Field("Trace", s.Muted.Render("none")))
		return b.String()
	}
	b.WriteString(s.Field("Trace", fmt.Sprintf("%s, integrity %s", humanBytes(v.Trace.Size), v.Trace.Integrity)))
	for _, name := range v.Trace.TableNames() {
		fmt.Fprintf(&b, "  %s %d\n", s.Label.Render(name), v.Trace.Tables[name])
	}
	return b.String()
}

func runInfo(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	packPath := args[0]

	manifest, err := bundle.ReadManifest(packPath)
	if err != nil {
		return err
	}
	digest, err := bundle.Digest(packPath)
	if err != nil {
		return err
	}
	trace, err := bundle.InspectTrace(cmd.Context(), packPath)
	if err != nil {
		cctx.Logger().WithError(err).Warn("cannot inspect trace database")
		trace = nil
	}

	view := infoView{
		Path:       packPath,
		Digest:     digest,
		Members:    len(manifest.Payload),
		OtherFiles: len(manifest.Config.OtherFiles),
		Trace:      trace,
	}
	if _, err := os.Stat(bundle.SignaturePath(packPath)); err == nil {
		view.Signed = true
	}
	if host, err := sandbox.HostPlatform(); err == nil {
		view.Compatible = sandbox.CheckCompatibility(manifest.Config, host) == nil
	}
	for i, run := range manifest.Config.Runs {
		view.Runs = append(view.Runs, infoRun{
			Index:        i,
			ID:           run.ID,
			Command:      run.String(),
			Architecture: run.Architecture,
			System:       run.System,
		})
	}
	for _, p := range manifest.Config.Packages {
		view.Packages = append(view.Packages, infoPackage{
			Name:      p.Name,
			Version:   p.Version,
			PackFiles: p.PackFiles,
			Files:     len(p.Files),
		})
	}
	return cctx.Print(cmd.OutOrStdout(), view)
}
