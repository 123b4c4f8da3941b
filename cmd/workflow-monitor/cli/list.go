package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davarch/workflow-monitor/internal/domain"
)

var (
	listOnlyActive   bool
	listOnlyInactive bool
	listJSON         bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		workflows, err := store.AllWorkflows(cmd.Context())
		if err != nil {
			return err
		}

		items := make([]domain.Workflow, 0, len(workflows))
		for _, w := range workflows {
			if listOnlyActive && !w.Active {
				continue
			}
			if listOnlyInactive && w.Active {
				continue
			}
			items = append(items, w)
		}

		if listJSON {
			type out struct {
				UUID   string `json:"uuid"`
				Name   string `json:"name"`
				Active bool   `json:"active"`
			}
			rows := make([]out, 0, len(items))
			for _, w := range items {
				rows = append(rows, out{UUID: w.UUID.String(), Name: w.Name, Active: w.Active})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tUUID\tACTIVE")
		for _, wf := range items {
			active := "false"
			if wf.Active {
				active = "true"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", wf.Name, wf.UUID, active)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listOnlyActive, "active", false, "show only active workflows")
	listCmd.Flags().BoolVar(&listOnlyInactive, "inactive", false, "show only inactive workflows")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	listCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if listOnlyActive && listOnlyInactive {
			return fmt.Errorf("flags --active and --inactive are mutually exclusive")
		}
		return nil
	}

	rootCmd.AddCommand(listCmd)
}
