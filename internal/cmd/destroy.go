package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/sandbox"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <target>",
	Short: "Remove a target directory",
	Long: `Remove the isolated root, configuration, saved inputs and replay state
of a target. A directory that holds no target is left alone. On a
terminal the removal is confirmed first unless --yes is given.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTargetDir,
	RunE:              runDestroy,
}

var destroyYes bool

func init() {
	destroyCmd.Flags().BoolVarP(&destroyYes, "yes", "y", false, "do not ask for confirmation")

	sandboxCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	dir := args[0]

	if !destroyYes && ux.Interactive() {
		ok, err := ux.Confirm(fmt.Sprintf("Remove target %s?", dir), false)
		if err != nil {
			return err
		}
		if !ok {
			return cctx.Print(cmd.OutOrStdout(), "Aborted")
		}
	}

	outcome, err := sandbox.Destroy(dir, cctx.Logger())
	if err != nil {
		return err
	}
	return cctx.Print(cmd.OutOrStdout(), fmt.Sprintf("%s: %s", dir, outcome))
}
