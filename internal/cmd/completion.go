package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/sandbox"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `To load completions:

Bash:
  $ source <(reprobox completion bash)

  # To load completions for each session, execute once:
  $ reprobox completion bash > /etc/bash_completion.d/reprobox

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ reprobox completion zsh > "${fpath[1]}/_reprobox"

Fish:
  $ reprobox completion fish | source

PowerShell:
  PS> reprobox completion powershell | Out-String | Invoke-Expression

Run selectors and input/output names are completed from the target
named by the first argument of sandbox commands.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletion(out)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

// completeTargetDir completes the target argument itself.
func completeTargetDir(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveFilterDirs
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completeRuns offers run indexes and ids of the target in args[0].
func completeRuns(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 1 {
		return completeTargetDir(cmd, args, toComplete)
	}
	target, err := sandbox.Open(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for i, run := range target.Config.Runs {
		out = append(out, strconv.Itoa(i)+"\t"+run.String())
		if run.ID != "" {
			out = append(out, run.ID)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeFileSpecs offers "name:" for the inputs or outputs of the target
// in args[0].
func completeFileSpecs(want func(*config.FileEntry) bool) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return completeTargetDir(cmd, args, toComplete)
		}
		target, err := sandbox.Open(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []string
		for _, f := range target.Config.Files() {
			if want(f) && strings.HasPrefix(f.Name, strings.TrimPrefix(toComplete, ":")) {
				out = append(out, f.Name+":\t"+f.Path)
			}
		}
		return out, cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
	}
}
