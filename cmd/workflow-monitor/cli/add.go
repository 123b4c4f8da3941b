package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/davarch/workflow-monitor/internal/domain"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register workflows, versions, suites, test instances and users",
}

var (
	addVersionFlag   string
	addURIFlag       string
	addSubmitterFlag int64
)

var addWorkflowCmd = &cobra.Command{
	Use:   "workflow <name>",
	Short: "Register a workflow with its first version",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		now := time.Now().UTC()
		w := domain.Workflow{
			UUID:      uuid.New(),
			Name:      args[0],
			Active:    true,
			CreatedAt: now,
		}
		if err := store.CreateWorkflow(cmd.Context(), w); err != nil {
			return err
		}

		versionID, err := store.AddVersion(cmd.Context(), domain.WorkflowVersion{
			WorkflowUUID: w.UUID,
			Version:      addVersionFlag,
			URI:          addURIFlag,
			SubmitterID:  addSubmitterFlag,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		fmt.Printf("workflow %s registered (uuid %s, version id %d)\n", w.Name, w.UUID, versionID)
		return nil
	},
}

var addVersionCmd = &cobra.Command{
	Use:   "version <workflow_name> <version>",
	Short: "Add a version to an existing workflow",
	Args:  cobra.MatchAll(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		w, err := findWorkflow(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		versionID, err := store.AddVersion(cmd.Context(), domain.WorkflowVersion{
			WorkflowUUID: w.UUID,
			Version:      args[1],
			URI:          addURIFlag,
			SubmitterID:  addSubmitterFlag,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		fmt.Printf("version %s added to %s (id %d)\n", args[1], w.Name, versionID)
		return nil
	},
}

var addSuiteVersionID int64

var addSuiteCmd = &cobra.Command{
	Use:   "suite <name>",
	Short: "Add a test suite to a workflow version",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		id, err := store.AddSuite(cmd.Context(), domain.Suite{
			VersionID: addSuiteVersionID,
			Name:      args[0],
		})
		if err != nil {
			return err
		}

		fmt.Printf("suite %s added (id %d)\n", args[0], id)
		return nil
	},
}

var (
	addInstanceSuiteID  int64
	addInstanceService  string
	addInstanceResource string
)

var addInstanceCmd = &cobra.Command{
	Use:   "instance <name>",
	Short: "Bind a test instance of a suite to a testing service",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		id, err := store.AddInstance(cmd.Context(), domain.TestInstance{
			SuiteID:    addInstanceSuiteID,
			Name:       args[0],
			ServiceURL: addInstanceService,
			Resource:   addInstanceResource,
		})
		if err != nil {
			return err
		}

		fmt.Printf("test instance %s added (id %d)\n", args[0], id)
		return nil
	},
}

var (
	addUserEmail   string
	addUserNoMails bool
)

var addUserCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Register a user",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		id, err := store.CreateUser(cmd.Context(), domain.User{
			Username:           args[0],
			Email:              addUserEmail,
			EmailNotifications: !addUserNoMails,
		})
		if err != nil {
			return err
		}

		fmt.Printf("user %s registered (id %d)\n", args[0], id)
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <workflow_name> <user_id>",
	Short: "Subscribe a user to a workflow's notifications",
	Args:  cobra.MatchAll(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		w, err := findWorkflow(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		var userID int64
		if _, err := fmt.Sscanf(args[1], "%d", &userID); err != nil {
			return fmt.Errorf("invalid user id %q", args[1])
		}

		if err := store.Subscribe(cmd.Context(), w.UUID, userID); err != nil {
			return err
		}

		fmt.Printf("user %d subscribed to %s\n", userID, w.Name)
		return nil
	},
}

func findWorkflow(ctx context.Context, repo domain.WorkflowRepository, name string) (*domain.Workflow, error) {
	workflows, err := repo.AllWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range workflows {
		if w.Name == name {
			return &w, nil
		}
	}
	return nil, fmt.Errorf("workflow %q not found", name)
}

func init() {
	addWorkflowCmd.Flags().StringVar(&addVersionFlag, "version", "1", "initial version label")
	addWorkflowCmd.Flags().StringVar(&addURIFlag, "uri", "", "artifact URI of the version")
	addWorkflowCmd.Flags().Int64Var(&addSubmitterFlag, "submitter", 0, "submitter user id")

	addVersionCmd.Flags().StringVar(&addURIFlag, "uri", "", "artifact URI of the version")
	addVersionCmd.Flags().Int64Var(&addSubmitterFlag, "submitter", 0, "submitter user id")

	addSuiteCmd.Flags().Int64Var(&addSuiteVersionID, "version-id", 0, "workflow version id")
	_ = addSuiteCmd.MarkFlagRequired("version-id")

	addInstanceCmd.Flags().Int64Var(&addInstanceSuiteID, "suite-id", 0, "suite id")
	addInstanceCmd.Flags().StringVar(&addInstanceService, "service", "", "testing service base URL")
	addInstanceCmd.Flags().StringVar(&addInstanceResource, "resource", "", "resource path on the testing service")
	_ = addInstanceCmd.MarkFlagRequired("suite-id")
	_ = addInstanceCmd.MarkFlagRequired("service")

	addUserCmd.Flags().StringVar(&addUserEmail, "email", "", "notification email address")
	addUserCmd.Flags().BoolVar(&addUserNoMails, "no-email-notifications", false, "disable email notifications")

	addCmd.AddCommand(addWorkflowCmd, addVersionCmd, addSuiteCmd, addInstanceCmd, addUserCmd)
	rootCmd.AddCommand(addCmd, subscribeCmd)
}
