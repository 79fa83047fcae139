package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/metrics"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"chroot"},
	Short:   "Unpack a pack into a chroot target and replay its runs",
	Long: `Commands operating on a target directory: an isolated root
reconstructed from a pack, plus the state of past replays.

  setup     unpack a pack into a new target
  run       replay recorded runs inside the root
  upload    replace input files, or restore the originals
  download  copy output files out of the root
  status    show runs, inputs and outputs
  destroy   remove the target`,
}

var setupCmd = &cobra.Command{
	Use:   "setup <pack> <target>",
	Short: "Unpack a pack into a new target directory",
	Long: `Unpack a pack into a new target directory. The target must not exist
or be an empty directory. Recorded file owners are restored when running
as root unless --dont-preserve-owner is given.`,
	Example: `  reprobox sandbox setup experiment.rpz ./replay
  sudo reprobox sandbox setup --preserve-owner experiment.rpz /srv/replay`,
	Args: cobra.ExactArgs(2),
	RunE: runSetup,
}

var (
	setupPreserveOwner     bool
	setupDontPreserveOwner bool
	setupStaticShell       string
	setupSkipCompat        bool
	setupVerifyKey         string
)

func init() {
	setupCmd.Flags().BoolVar(&setupPreserveOwner, "preserve-owner", false, "restore recorded file owners (needs root)")
	setupCmd.Flags().BoolVar(&setupDontPreserveOwner, "dont-preserve-owner", false, "keep extracted files owned by the current user")
	setupCmd.Flags().StringVar(&setupStaticShell, "static-shell", envSettings.StaticShell, "static shell installed when the pack lacks /bin/sh or /usr/bin/env (env REPROBOX_STATIC_SHELL)")
	setupCmd.Flags().BoolVar(&setupSkipCompat, "skip-compatibility-check", false, "unpack even if this host cannot run the pack")
	setupCmd.Flags().StringVar(&setupVerifyKey, "verify-key", "", "authorized_keys file the pack signature must verify against")

	sandboxCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(sandboxCmd)
}

// setupView is what setup prints.
type setupView struct {
	Target   string   `json:"target" yaml:"target"`
	Digest   string   `json:"pack_digest" yaml:"pack_digest"`
	Runs     int      `json:"runs" yaml:"runs"`
	Files    int      `json:"files" yaml:"files"`
	Dirs     int      `json:"dirs" yaml:"dirs"`
	Links    int      `json:"links" yaml:"links"`
	Bytes    int64    `json:"bytes" yaml:"bytes"`
	Inputs   int      `json:"saved_inputs" yaml:"saved_inputs"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (v setupView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Target ready") + "\n")
	b.WriteString(s.Field("Target", v.Target))
	b.WriteString(s.Field("Runs", v.Runs))
	b.WriteString(s.Field("Extracted", fmt.Sprintf("%d files, %d dirs, %d links, %s", v.Files, v.Dirs, v.Links, humanBytes(v.Bytes))))
	b.WriteString(s.Field("Pack digest", v.Digest))
	for _, w := range v.Warnings {
		b.WriteString(s.Bad.Render("warning: ") + w + "\n")
	}
	b.WriteString("\n" + s.Muted.Render("Next: reprobox sandbox run "+v.Target) + "\n")
	return b.String()
}

func runSetup(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if setupPreserveOwner && setupDontPreserveOwner {
		return conflictingFlags("preserve-owner", "dont-preserve-owner")
	}

	opts := sandbox.SetupOptions{
		StaticShell:       setupStaticShell,
		SkipCompatibility: setupSkipCompat,
		VerifyKey:         setupVerifyKey,
		Logger:            cctx.Logger(),
	}
	switch {
	case setupPreserveOwner:
		restore := true
		opts.RestoreOwner = &restore
	case setupDontPreserveOwner:
		restore := false
		opts.RestoreOwner = &restore
	}

	ind := cctx.Progress(cmd.ErrOrStderr(), "Extracting")
	if ind != nil {
		opts.Progress = ind.Update
	}
	result, err := sandbox.Create(args[0], args[1], opts)
	finishProgress(ind, err)
	if err != nil {
		return err
	}
	metrics.GetDefault().RecordSetup(result.Duration, result.Stats.Files, result.Stats.Bytes)

	return cctx.Print(cmd.OutOrStdout(), setupView{
		Target:   result.Target.Dir,
		Digest:   result.Digest,
		Runs:     len(result.Target.Config.Runs),
		Files:    result.Stats.Files,
		Dirs:     result.Stats.Dirs,
		Links:    result.Stats.Links,
		Bytes:    result.Stats.Bytes,
		Inputs:   result.Inputs,
		Warnings: result.Warnings,
	})
}

// humanBytes formats a byte count with a binary unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
