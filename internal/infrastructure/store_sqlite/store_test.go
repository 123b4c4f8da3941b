package store_sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedWorkflow(t *testing.T, s *Store) (domain.Workflow, int64) {
	t.Helper()
	ctx := context.Background()

	w := domain.Workflow{UUID: uuid.New(), Name: "wf", Active: true, CreatedAt: time.Now().UTC()}
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	versionID, err := s.AddVersion(ctx, domain.WorkflowVersion{
		WorkflowUUID: w.UUID,
		Version:      "1",
		URI:          "https://hub.example.org/wf/1",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("add version: %v", err)
	}
	return w, versionID
}

func TestStore_WorkflowRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w, _ := seedWorkflow(t, s)

	all, err := s.AllWorkflows(ctx)
	if err != nil {
		t.Fatalf("list workflows: %v", err)
	}
	if len(all) != 1 || all[0].UUID != w.UUID || !all[0].Active {
		t.Errorf("unexpected workflows: %v", all)
	}
}

func TestStore_SetWorkflowActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s)

	changed, err := s.SetWorkflowActive(ctx, "wf", false)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !changed {
		t.Error("expected a change")
	}

	changed, err = s.SetWorkflowActive(ctx, "wf", false)
	if err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if changed {
		t.Error("expected no change on second disable")
	}

	all, _ := s.AllWorkflows(ctx)
	if all[0].Active {
		t.Error("workflow should be inactive")
	}
}

func TestStore_LatestVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w, _ := seedWorkflow(t, s)
	_, err := s.AddVersion(ctx, domain.WorkflowVersion{
		WorkflowUUID: w.UUID,
		Version:      "2",
		CreatedAt:    time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("add second version: %v", err)
	}

	latest, err := s.LatestVersion(ctx, w.UUID)
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if latest == nil || latest.Version != "2" {
		t.Errorf("expected version 2, got %v", latest)
	}

	missing, err := s.LatestVersion(ctx, uuid.New())
	if err != nil {
		t.Fatalf("latest of unknown workflow: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown workflow, got %v", missing)
	}
}

func TestStore_TouchVersionLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w, versionID := seedWorkflow(t, s)

	at := time.Now().UTC()
	if err := s.TouchVersionLink(ctx, versionID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	versions, _ := s.Versions(ctx, w.UUID)
	if len(versions) != 1 || versions[0].LinkCheckedAt == nil {
		t.Fatalf("expected link_checked_at set, got %v", versions)
	}
}

func TestStore_SuitesWithInstances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, versionID := seedWorkflow(t, s)

	suiteID, err := s.AddSuite(ctx, domain.Suite{VersionID: versionID, Name: "unit"})
	if err != nil {
		t.Fatalf("add suite: %v", err)
	}
	_, err = s.AddInstance(ctx, domain.TestInstance{
		SuiteID:    suiteID,
		Name:       "jenkins",
		ServiceURL: "https://ci.example.org",
		Resource:   "job/wf",
	})
	if err != nil {
		t.Fatalf("add instance: %v", err)
	}

	suites, err := s.SuitesWithInstances(ctx, versionID)
	if err != nil {
		t.Fatalf("list suites: %v", err)
	}
	if len(suites) != 1 || suites[0].Name != "unit" {
		t.Fatalf("unexpected suites: %v", suites)
	}
	if len(suites[0].Instances) != 1 || suites[0].Instances[0].ServiceURL != "https://ci.example.org" {
		t.Errorf("unexpected instances: %v", suites[0].Instances)
	}
}

func TestStore_SubscribersAndUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w, _ := seedWorkflow(t, s)

	id1, err := s.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.org", EmailNotifications: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	id2, err := s.CreateUser(ctx, domain.User{Username: "bob"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := s.Subscribe(ctx, w.UUID, id1); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Subscribing twice must be a no-op.
	if err := s.Subscribe(ctx, w.UUID, id1); err != nil {
		t.Fatalf("re-subscribe: %v", err)
	}

	subs, err := s.Subscribers(ctx, w.UUID)
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != id1 {
		t.Errorf("unexpected subscribers: %v", subs)
	}

	u, err := s.User(ctx, id2)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "bob" || u.Email != "" {
		t.Errorf("unexpected user: %v", u)
	}

	if _, err := s.User(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_NotificationLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.org", EmailNotifications: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	n := domain.Notification{
		ID:         uuid.New(),
		Name:       "1/b7 FAILED",
		Event:      domain.EventBuildFailed,
		Payload:    `{"build":"b7"}`,
		Recipients: []domain.Recipient{{UserID: uid}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	// The unique name invariant.
	dup := n
	dup.ID = uuid.New()
	if err := s.CreateNotification(ctx, dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	found, err := s.FindByName(ctx, "1/b7 FAILED")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != n.ID || len(found.Recipients) != 1 {
		t.Fatalf("unexpected notification: %v", found)
	}

	missing, err := s.FindByName(ctx, "nope")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown name, got %v", missing)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}

	if err := s.MarkEmailed(ctx, n.ID, []int64{uid}, time.Now().UTC()); err != nil {
		t.Fatalf("mark emailed: %v", err)
	}
	pending, _ = s.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("expected no pending after delivery, got %d", len(pending))
	}

	found, _ = s.FindByName(ctx, "1/b7 FAILED")
	if found.Recipients[0].EmailedAt == nil {
		t.Error("recipient should be stamped")
	}
}

func TestStore_MarkEmailedIsAppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, _ := s.CreateUser(ctx, domain.User{Username: "alice", Email: "a@example.org", EmailNotifications: true})
	n := domain.Notification{
		ID:         uuid.New(),
		Name:       "n",
		Event:      domain.EventBuildFailed,
		Recipients: []domain.Recipient{{UserID: uid}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.MarkEmailed(ctx, n.ID, []int64{uid}, first); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkEmailed(ctx, n.ID, []int64{uid}, first.Add(time.Hour)); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	found, _ := s.FindByName(ctx, "n")
	if !found.Recipients[0].EmailedAt.Equal(first) {
		t.Errorf("emailed_at must keep its first value, got %v", found.Recipients[0].EmailedAt)
	}
}

func TestStore_OlderThanAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := domain.Notification{
		ID:        uuid.New(),
		Name:      "old",
		Event:     domain.EventBuildFailed,
		CreatedAt: time.Now().UTC().Add(-10 * 24 * time.Hour),
	}
	fresh := domain.Notification{
		ID:        uuid.New(),
		Name:      "fresh",
		Event:     domain.EventBuildFailed,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateNotification(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	stale, err := s.OlderThan(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("older than: %v", err)
	}
	if len(stale) != 1 || stale[0].Name != "old" {
		t.Fatalf("unexpected stale set: %v", stale)
	}

	if err := s.DeleteNotification(ctx, old.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteNotification(ctx, old.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}

	all, _ := s.AllNotifications(ctx)
	if len(all) != 1 || all[0].Name != "fresh" {
		t.Errorf("unexpected remaining notifications: %v", all)
	}
}

func TestStore_HasForUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uid, _ := s.CreateUser(ctx, domain.User{Username: "noaddr"})
	n := domain.Notification{
		ID:         uuid.New(),
		Name:       "flag",
		Event:      domain.EventUnconfiguredEmail,
		Recipients: []domain.Recipient{{UserID: uid}},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	has, err := s.HasForUser(ctx, uid, domain.EventUnconfiguredEmail)
	if err != nil {
		t.Fatalf("has for user: %v", err)
	}
	if !has {
		t.Error("expected the flag to be found")
	}

	has, _ = s.HasForUser(ctx, uid, domain.EventBuildFailed)
	if has {
		t.Error("kind must be part of the lookup")
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w := domain.Workflow{UUID: uuid.New(), Name: "wf", Active: true, CreatedAt: time.Now().UTC()}
	if err := s.CreateWorkflow(context.Background(), w); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	all, err := s2.AllWorkflows(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected persisted workflow, got %d", len(all))
	}
}
