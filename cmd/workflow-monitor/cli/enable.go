package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable <workflow_name>",
	Short: "Resume monitoring of a workflow",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		changed, err := store.SetWorkflowActive(cmd.Context(), name, true)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Printf("no change (workflow %q already active or not found)\n", name)
			return nil
		}

		fmt.Printf("enabled: %s\n", name)
		return nil
	},
}

func workflowNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	store, _, err := openStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer func() { _ = store.Close() }()

	workflows, err := store.AllWorkflows(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(workflows))
	for _, w := range workflows {
		if w.Name == "" {
			continue
		}

		if toComplete == "" || startsWith(w.Name, toComplete) {
			out = append(out, w.Name)
		}
	}

	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	enableCmd.ValidArgsFunction = workflowNameCompletion

	rootCmd.AddCommand(enableCmd)
}

func startsWith(s, pref string) bool {
	if len(pref) > len(s) {
		return false
	}

	return s[:len(pref)] == pref
}
