package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, platform and the pack format this build reads.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

var versionVerbose bool

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	info := version.GetInfo()

	if cctx.Format != "" && cctx.Format != "text" {
		return cctx.Print(cmd.OutOrStdout(), info)
	}
	if versionVerbose {
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reprobox %s\n", info.Version)
	return nil
}
