package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/davarch/workflow-monitor/internal/domain"
)

var (
	notificationsJSON    bool
	notificationsPending bool
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications and their delivery state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		var items []domain.Notification
		if notificationsPending {
			items, err = store.Pending(cmd.Context())
		} else {
			items, err = store.AllNotifications(cmd.Context())
		}
		if err != nil {
			return err
		}

		if notificationsJSON {
			type out struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				Event     string `json:"event"`
				CreatedAt string `json:"created_at"`
				Pending   int    `json:"pending_recipients"`
				Total     int    `json:"recipients"`
			}
			rows := make([]out, 0, len(items))
			for _, n := range items {
				rows = append(rows, out{
					ID:        n.ID.String(),
					Name:      n.Name,
					Event:     string(n.Event),
					CreatedAt: n.CreatedAt.Format(time.RFC3339),
					Pending:   pendingRecipients(n),
					Total:     len(n.Recipients),
				})
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tEVENT\tCREATED\tPENDING/RECIPIENTS")
		for _, n := range items {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n",
				n.Name, n.Event, n.CreatedAt.Format(time.RFC3339),
				pendingRecipients(n), len(n.Recipients))
		}
		_ = w.Flush()
		return nil
	},
}

func pendingRecipients(n domain.Notification) int {
	count := 0
	for _, rc := range n.Recipients {
		if rc.EmailedAt == nil {
			count++
		}
	}
	return count
}

func init() {
	notificationsCmd.Flags().BoolVar(&notificationsJSON, "json", false, "print JSON")
	notificationsCmd.Flags().BoolVar(&notificationsPending, "pending", false, "show only notifications awaiting delivery")

	rootCmd.AddCommand(notificationsCmd)
}
