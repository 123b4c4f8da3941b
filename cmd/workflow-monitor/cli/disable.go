package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable <workflow_name>",
	Short: "Pause monitoring of a workflow",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		changed, err := store.SetWorkflowActive(cmd.Context(), name, false)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Printf("no change (workflow %q already inactive or not found)\n", name)
			return nil
		}

		fmt.Printf("disabled: %s\n", name)
		return nil
	},
}

func init() {
	disableCmd.ValidArgsFunction = workflowNameCompletion

	rootCmd.AddCommand(disableCmd)
}
