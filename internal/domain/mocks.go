package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MockGateway struct {
	Builds map[int64][]BuildOutcome
	Errs   map[int64]error
	Called int
}

func (m *MockGateway) LatestBuild(ctx context.Context, inst TestInstance) (*BuildOutcome, error) {
	m.Called++
	if err := m.Errs[inst.ID]; err != nil {
		return nil, err
	}
	builds := m.Builds[inst.ID]
	if len(builds) == 0 {
		return nil, nil
	}
	b := builds[0]
	return &b, nil
}

func (m *MockGateway) RecentBuilds(ctx context.Context, inst TestInstance, limit int) ([]BuildOutcome, error) {
	m.Called++
	if err := m.Errs[inst.ID]; err != nil {
		return nil, err
	}
	builds := m.Builds[inst.ID]
	if limit > 0 && len(builds) > limit {
		builds = builds[:limit]
	}
	out := make([]BuildOutcome, len(builds))
	copy(out, builds)
	return out, nil
}

func (m *MockGateway) Build(ctx context.Context, inst TestInstance, id string) (*BuildOutcome, error) {
	for _, b := range m.Builds[inst.ID] {
		if b.BuildID == id {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

type MockLocker struct {
	mu       sync.Mutex
	Held     map[string]bool
	Acquired []string
}

func (l *MockLocker) WithLock(key string, fn func() error) error {
	l.mu.Lock()
	if l.Held == nil {
		l.Held = make(map[string]bool)
	}
	if l.Held[key] {
		l.mu.Unlock()
		return ErrLockUnavailable
	}
	l.Held[key] = true
	l.Acquired = append(l.Acquired, key)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.Held, key)
		l.mu.Unlock()
	}()
	return fn()
}

type SentMail struct {
	Name       string
	Recipients []string
}

type MockMailer struct {
	Sent       []SentMail
	Err        error
	DeliveryID string
}

func (m *MockMailer) Send(ctx context.Context, n Notification, recipients []string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, SentMail{Name: n.Name, Recipients: recipients})
	if m.DeliveryID != "" {
		return m.DeliveryID, nil
	}
	return uuid.NewString(), nil
}

type MockNotificationRepo struct {
	mu    sync.Mutex
	Items map[string]*Notification
}

func (r *MockNotificationRepo) init() {
	if r.Items == nil {
		r.Items = make(map[string]*Notification)
	}
}

func (r *MockNotificationRepo) CreateNotification(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if _, ok := r.Items[n.Name]; ok {
		return ErrDuplicate
	}
	cp := n
	cp.Recipients = append([]Recipient(nil), n.Recipients...)
	r.Items[n.Name] = &cp
	return nil
}

func (r *MockNotificationRepo) FindByName(ctx context.Context, name string) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if n, ok := r.Items[name]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, nil
}

func (r *MockNotificationRepo) Pending(ctx context.Context) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.Items {
		for _, rc := range n.Recipients {
			if rc.EmailedAt == nil {
				out = append(out, *n)
				break
			}
		}
	}
	return out, nil
}

func (r *MockNotificationRepo) OlderThan(ctx context.Context, t time.Time) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.Items {
		if n.CreatedAt.Before(t) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *MockNotificationRepo) MarkEmailed(ctx context.Context, id uuid.UUID, userIDs []int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.Items {
		if n.ID != id {
			continue
		}
		for i := range n.Recipients {
			for _, uid := range userIDs {
				if n.Recipients[i].UserID == uid && n.Recipients[i].EmailedAt == nil {
					ts := at
					n.Recipients[i].EmailedAt = &ts
				}
			}
		}
		return nil
	}
	return ErrNotFound
}

func (r *MockNotificationRepo) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, n := range r.Items {
		if n.ID == id {
			delete(r.Items, name)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MockNotificationRepo) HasForUser(ctx context.Context, userID int64, event EventType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.Items {
		if n.Event != event {
			continue
		}
		for _, rc := range n.Recipients {
			if rc.UserID == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *MockNotificationRepo) AllNotifications(ctx context.Context) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.Items {
		out = append(out, *n)
	}
	return out, nil
}

type MockWorkflowRepo struct {
	Workflows       []Workflow
	VersionsByWF    map[uuid.UUID][]WorkflowVersion
	SuitesByVersion map[int64][]Suite
	Touched         []int64
	Err             error
}

func (r *MockWorkflowRepo) CreateWorkflow(ctx context.Context, w Workflow) error {
	r.Workflows = append(r.Workflows, w)
	return nil
}

func (r *MockWorkflowRepo) AllWorkflows(ctx context.Context) ([]Workflow, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]Workflow(nil), r.Workflows...), nil
}

func (r *MockWorkflowRepo) SetWorkflowActive(ctx context.Context, name string, active bool) (bool, error) {
	for i := range r.Workflows {
		if r.Workflows[i].Name == name && r.Workflows[i].Active != active {
			r.Workflows[i].Active = active
			return true, nil
		}
	}
	return false, nil
}

func (r *MockWorkflowRepo) AddVersion(ctx context.Context, v WorkflowVersion) (int64, error) {
	if r.VersionsByWF == nil {
		r.VersionsByWF = make(map[uuid.UUID][]WorkflowVersion)
	}
	r.VersionsByWF[v.WorkflowUUID] = append(r.VersionsByWF[v.WorkflowUUID], v)
	return v.ID, nil
}

func (r *MockWorkflowRepo) Versions(ctx context.Context, workflow uuid.UUID) ([]WorkflowVersion, error) {
	return append([]WorkflowVersion(nil), r.VersionsByWF[workflow]...), nil
}

func (r *MockWorkflowRepo) LatestVersion(ctx context.Context, workflow uuid.UUID) (*WorkflowVersion, error) {
	versions := r.VersionsByWF[workflow]
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return &latest, nil
}

func (r *MockWorkflowRepo) TouchVersionLink(ctx context.Context, versionID int64, at time.Time) error {
	r.Touched = append(r.Touched, versionID)
	return nil
}

func (r *MockWorkflowRepo) AddSuite(ctx context.Context, s Suite) (int64, error) {
	if r.SuitesByVersion == nil {
		r.SuitesByVersion = make(map[int64][]Suite)
	}
	r.SuitesByVersion[s.VersionID] = append(r.SuitesByVersion[s.VersionID], s)
	return s.ID, nil
}

func (r *MockWorkflowRepo) AddInstance(ctx context.Context, i TestInstance) (int64, error) {
	for vid, suites := range r.SuitesByVersion {
		for si := range suites {
			if suites[si].ID == i.SuiteID {
				r.SuitesByVersion[vid][si].Instances = append(r.SuitesByVersion[vid][si].Instances, i)
				return i.ID, nil
			}
		}
	}
	return 0, ErrNotFound
}

func (r *MockWorkflowRepo) SuitesWithInstances(ctx context.Context, versionID int64) ([]Suite, error) {
	return append([]Suite(nil), r.SuitesByVersion[versionID]...), nil
}

type MockUserRepo struct {
	Users map[int64]User
	Subs  map[uuid.UUID][]int64
}

func (r *MockUserRepo) CreateUser(ctx context.Context, u User) (int64, error) {
	if r.Users == nil {
		r.Users = make(map[int64]User)
	}
	r.Users[u.ID] = u
	return u.ID, nil
}

func (r *MockUserRepo) User(ctx context.Context, id int64) (*User, error) {
	if u, ok := r.Users[id]; ok {
		return &u, nil
	}
	return nil, ErrNotFound
}

func (r *MockUserRepo) AllUsers(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range r.Users {
		out = append(out, u)
	}
	return out, nil
}

func (r *MockUserRepo) Subscribe(ctx context.Context, workflow uuid.UUID, userID int64) error {
	if r.Subs == nil {
		r.Subs = make(map[uuid.UUID][]int64)
	}
	r.Subs[workflow] = append(r.Subs[workflow], userID)
	return nil
}

func (r *MockUserRepo) Subscribers(ctx context.Context, workflow uuid.UUID) ([]User, error) {
	var out []User
	for _, id := range r.Subs[workflow] {
		if u, ok := r.Users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type MockArtifacts struct {
	Refreshed []int64
	ActingAs  []string
	ErrFor    map[int64]error
}

func (a *MockArtifacts) Refresh(ctx context.Context, v WorkflowVersion, actingAs *User) error {
	if err := a.ErrFor[v.ID]; err != nil {
		return err
	}
	a.Refreshed = append(a.Refreshed, v.ID)
	if actingAs != nil {
		a.ActingAs = append(a.ActingAs, actingAs.Username)
	} else {
		a.ActingAs = append(a.ActingAs, "")
	}
	return nil
}

type MockStatusWriter struct {
	Snapshots []StatusSnapshot
}

func (w *MockStatusWriter) Write(ctx context.Context, s StatusSnapshot) error {
	w.Snapshots = append(w.Snapshots, s)
	return nil
}
