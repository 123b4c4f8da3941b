package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BuildStatus string

const (
	BuildPassed BuildStatus = "passed"
	BuildFailed BuildStatus = "failed"
	BuildOther  BuildStatus = "other"
)

// Decisive reports whether the status can participate in a state
// transition. Aborted, running or otherwise unknown builds cannot.
func (s BuildStatus) Decisive() bool {
	return s == BuildPassed || s == BuildFailed
}

type AggregateStatus string

const (
	StatusNotAvailable AggregateStatus = "not_available"
	StatusAllPassing   AggregateStatus = "all_passing"
	StatusSomePassing  AggregateStatus = "some_passing"
	StatusAllFailing   AggregateStatus = "all_failing"
)

type Workflow struct {
	UUID      uuid.UUID
	Name      string
	Active    bool
	CreatedAt time.Time
}

type WorkflowVersion struct {
	ID            int64
	WorkflowUUID  uuid.UUID
	Version       string
	URI           string
	SubmitterID   int64
	LinkCheckedAt *time.Time
	CreatedAt     time.Time
}

// LockKey identifies the version for per-resource mutual exclusion.
func (v WorkflowVersion) LockKey() string {
	return fmt.Sprintf("workflow-version-%d", v.ID)
}

type Suite struct {
	ID        int64
	VersionID int64
	Name      string
	Instances []TestInstance
}

type TestInstance struct {
	ID         int64
	SuiteID    int64
	Name       string
	ServiceURL string
	Resource   string
}

func (i TestInstance) LockKey() string {
	return fmt.Sprintf("test-instance-%d", i.ID)
}

// BuildOutcome is one execution record of a test instance, immutable
// once fetched from the testing service.
type BuildOutcome struct {
	InstanceID int64
	BuildID    string
	Status     BuildStatus
	Timestamp  time.Time
}

func (b BuildOutcome) Passing() bool { return b.Status == BuildPassed }

// AvailabilityIssue explains why a status computation could not cover a
// suite or instance. It accompanies the status, it is not an error.
type AvailabilityIssue struct {
	Service    string `json:"service,omitempty"`
	InstanceID int64  `json:"test_instance,omitempty"`
	Issue      string `json:"issue"`
}

// StatusReport is the result of one aggregate status computation.
type StatusReport struct {
	Status       AggregateStatus
	LatestBuilds []BuildOutcome
	Issues       []AvailabilityIssue
}

type TransitionKind string

const (
	TransitionFailed    TransitionKind = "FAILED"
	TransitionRecovered TransitionKind = "RECOVERED"
)

// TransitionEvent marks a detected build state transition for one test
// instance. Produced once per detection cycle, never stored.
type TransitionEvent struct {
	InstanceID int64
	Kind       TransitionKind
	BuildID    string
}

// NotificationName derives the deduplication key for the event. It
// depends only on the triggering build identity and the event kind, so
// re-running a detection pass yields the same key.
func (e TransitionEvent) NotificationName() string {
	return fmt.Sprintf("%d/%s %s", e.InstanceID, e.BuildID, e.Kind)
}

type EventType string

const (
	EventBuildFailed       EventType = "build_failed"
	EventBuildRecovered    EventType = "build_recovered"
	EventUnconfiguredEmail EventType = "unconfigured_email"
)

type User struct {
	ID                 int64
	Username           string
	Email              string
	EmailNotifications bool
}

// Recipient tracks per-user delivery state of one notification.
// EmailedAt is append-only: once set it is never cleared.
type Recipient struct {
	UserID    int64
	EmailedAt *time.Time
}

type Notification struct {
	ID         uuid.UUID
	Name       string
	Event      EventType
	Payload    string
	Recipients []Recipient
	CreatedAt  time.Time
}

// Emailable reports whether the notification kind is delivered by mail
// at all. Unconfigured-email flags exist precisely because the user has
// no address to send to.
func (n Notification) Emailable() bool {
	return n.Event != EventUnconfiguredEmail
}

// WorkflowStatusEntry is one workflow's line in the exported snapshot.
type WorkflowStatusEntry struct {
	WorkflowUUID string              `json:"workflow_uuid"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Status       AggregateStatus     `json:"status"`
	Issues       []AvailabilityIssue `json:"issues,omitempty"`
}

// StatusSnapshot is the read model handed to external consumers after a
// build polling pass.
type StatusSnapshot struct {
	GeneratedAt int64                 `json:"generated_at"`
	Workflows   []WorkflowStatusEntry `json:"workflows"`
}
