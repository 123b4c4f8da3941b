package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davarch/workflow-monitor/internal/application"
	"github.com/davarch/workflow-monitor/internal/infrastructure/testservice_http"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <workflow_name>",
	Short: "Compute the aggregate test status of a workflow's latest version",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		w, err := findWorkflow(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		latest, err := store.LatestVersion(cmd.Context(), w.UUID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("workflow %q has no versions", w.Name)
		}

		suites, err := store.SuitesWithInstances(cmd.Context(), latest.ID)
		if err != nil {
			return err
		}

		gateway := testservice_http.New(cfg.Testing.Token, cfg.Testing.Timeout)
		report := application.NewStatusAggregator(gateway).ComputeStatus(cmd.Context(), suites)

		if statusJSON {
			out := struct {
				Workflow string `json:"workflow"`
				Version  string `json:"version"`
				Status   string `json:"status"`
				Builds   int    `json:"latest_builds"`
				Issues   any    `json:"issues,omitempty"`
			}{w.Name, latest.Version, string(report.Status), len(report.LatestBuilds), report.Issues}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("%s (version %s): %s\n", w.Name, latest.Version, report.Status)
		for _, issue := range report.Issues {
			if issue.Service != "" {
				fmt.Printf("  issue: %s (%s)\n", issue.Issue, issue.Service)
			} else {
				fmt.Printf("  issue: %s\n", issue.Issue)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
	statusCmd.ValidArgsFunction = workflowNameCompletion

	rootCmd.AddCommand(statusCmd)
}
