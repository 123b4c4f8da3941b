package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TestBuildGateway fetches build records from the external testing
// service bound to a test instance. Failures carry a *ServiceError.
type TestBuildGateway interface {
	// LatestBuild returns the most recent build, or nil when the
	// service knows no builds for the instance.
	LatestBuild(ctx context.Context, inst TestInstance) (*BuildOutcome, error)
	// RecentBuilds returns up to limit builds, newest first.
	RecentBuilds(ctx context.Context, inst TestInstance, limit int) ([]BuildOutcome, error)
	Build(ctx context.Context, inst TestInstance, id string) (*BuildOutcome, error)
}

type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, w Workflow) error
	AllWorkflows(ctx context.Context) ([]Workflow, error)
	SetWorkflowActive(ctx context.Context, name string, active bool) (bool, error)

	AddVersion(ctx context.Context, v WorkflowVersion) (int64, error)
	Versions(ctx context.Context, workflow uuid.UUID) ([]WorkflowVersion, error)
	// LatestVersion returns nil when the workflow has no versions yet.
	LatestVersion(ctx context.Context, workflow uuid.UUID) (*WorkflowVersion, error)
	TouchVersionLink(ctx context.Context, versionID int64, at time.Time) error

	AddSuite(ctx context.Context, s Suite) (int64, error)
	AddInstance(ctx context.Context, i TestInstance) (int64, error)
	// SuitesWithInstances returns the version's suites with their test
	// instances populated.
	SuitesWithInstances(ctx context.Context, versionID int64) ([]Suite, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u User) (int64, error)
	User(ctx context.Context, id int64) (*User, error)
	AllUsers(ctx context.Context) ([]User, error)
	Subscribe(ctx context.Context, workflow uuid.UUID, userID int64) error
	// Subscribers returns the current subscribers of the workflow.
	Subscribers(ctx context.Context, workflow uuid.UUID) ([]User, error)
}

type NotificationRepository interface {
	// CreateNotification returns ErrDuplicate when a live notification
	// with the same name already exists.
	CreateNotification(ctx context.Context, n Notification) error
	// FindByName returns nil when no notification carries the name.
	FindByName(ctx context.Context, name string) (*Notification, error)
	// Pending returns notifications with at least one recipient not yet
	// emailed, oldest first.
	Pending(ctx context.Context) ([]Notification, error)
	OlderThan(ctx context.Context, t time.Time) ([]Notification, error)
	// MarkEmailed stamps emailed_at for the given recipients only.
	MarkEmailed(ctx context.Context, id uuid.UUID, userIDs []int64, at time.Time) error
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	// HasForUser reports whether the user is a recipient of any live
	// notification of the given kind.
	HasForUser(ctx context.Context, userID int64, event EventType) (bool, error)
	AllNotifications(ctx context.Context) ([]Notification, error)
}

// ResourceLocker serializes polling passes per resource key across the
// whole deployment. WithLock returns ErrLockUnavailable without running
// fn when the key is already held.
type ResourceLocker interface {
	WithLock(key string, fn func() error) error
}

// Mailer delivers one notification to a set of addresses in a single
// transport call. An empty delivery id with a nil error means the
// transport is not configured and nothing was sent.
type Mailer interface {
	Send(ctx context.Context, n Notification, recipients []string) (string, error)
}

// ArtifactService refreshes the external artifact/link state of a
// workflow version, acting as the given user when one is supplied.
type ArtifactService interface {
	Refresh(ctx context.Context, v WorkflowVersion, actingAs *User) error
}

// StatusWriter publishes the latest computed statuses for external
// consumers.
type StatusWriter interface {
	Write(ctx context.Context, s StatusSnapshot) error
}
