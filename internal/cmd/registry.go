package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/ux"
	"github.com/felixgeelhaar/reprobox/internal/version"
)

var pushCmd = &cobra.Command{
	Use:   "push <pack> <reference>",
	Short: "Upload a pack to an OCI registry",
	Long: `Upload a pack to an OCI registry as a single-layer artifact. Credentials
come from the Docker configuration (docker login).`,
	Example: `  reprobox push experiment.rpz ghcr.io/lab/experiment:v1
  reprobox push --insecure experiment.rpz localhost:5000/experiment:latest`,
	Args: cobra.ExactArgs(2),
	RunE: runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull <reference> <pack>",
	Short: "Download a pack from an OCI registry",
	Long: `Download a pack pushed with 'reprobox push'. The pack path must not
exist. The download is checked against the digest recorded at push time.`,
	Example: `  reprobox pull ghcr.io/lab/experiment:v1 experiment.rpz`,
	Args:    cobra.ExactArgs(2),
	RunE:    runPull,
}

var registryInsecure bool

func init() {
	for _, c := range []*cobra.Command{pushCmd, pullCmd} {
		c.Flags().BoolVar(&registryInsecure, "insecure", envSettings.RegistryInsecure, "use plain HTTP (env REPROBOX_REGISTRY_INSECURE)")
		rootCmd.AddCommand(c)
	}
}

// remoteView is what push and pull print.
type remoteView struct {
	Operation string            `json:"operation" yaml:"operation"`
	Pack      string            `json:"pack" yaml:"pack"`
	Reference string            `json:"reference" yaml:"reference"`
	Digest    string            `json:"digest" yaml:"digest"`
	Labels    map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func (v remoteView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	title := "Pushed"
	if v.Operation == "pull" {
		title = "Pulled"
	}
	b.WriteString(s.Title.Render(title) + "\n")
	b.WriteString(s.Field("Pack", v.Pack))
	b.WriteString(s.Field("Reference", v.Reference))
	b.WriteString(s.Field("Digest", v.Digest))
	return b.String()
}

func registryOptions() bundle.RegistryOptions {
	return bundle.RegistryOptions{
		Insecure:  registryInsecure,
		UserAgent: "reprobox/" + version.GetInfo().Version,
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	packPath, ref := args[0], args[1]

	started := time.Now()
	remote, err := bundle.Push(cmd.Context(), packPath, ref, registryOptions())
	metrics.GetDefault().RecordRegistry("push", time.Since(started), err == nil)
	if err != nil {
		return err
	}
	cctx.Logger().Info("pack pushed", "reference", remote.Reference, "digest", remote.Digest)
	return cctx.Print(cmd.OutOrStdout(), remoteView{
		Operation: "push",
		Pack:      packPath,
		Reference: remote.Reference,
		Digest:    remote.Digest,
		Labels:    remote.Labels,
	})
}

func runPull(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ref, packPath := args[0], args[1]

	started := time.Now()
	remote, err := bundle.Pull(cmd.Context(), ref, packPath, registryOptions())
	metrics.GetDefault().RecordRegistry("pull", time.Since(started), err == nil)
	if err != nil {
		return err
	}
	cctx.Logger().Info("pack pulled", "reference", remote.Reference, "digest", remote.Digest)
	return cctx.Print(cmd.OutOrStdout(), remoteView{
		Operation: "pull",
		Pack:      packPath,
		Reference: remote.Reference,
		Digest:    remote.Digest,
		Labels:    remote.Labels,
	})
}
