package testservice_http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func instanceFor(srv *httptest.Server) domain.TestInstance {
	return domain.TestInstance{
		ID:         7,
		SuiteID:    1,
		Name:       "unit",
		ServiceURL: srv.URL,
		Resource:   "repo/branch",
	}
}

func TestRecentBuilds_ParsesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/builds" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("resource"); got != "repo/branch" {
			t.Errorf("unexpected resource %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, `[
			{"id":"b3","status":"failed","finished_at":300},
			{"id":"b2","status":"passed","finished_at":200},
			{"id":"b1","status":"running","finished_at":100}
		]`)
	}))
	defer srv.Close()

	c := New("tok", 2*time.Second)
	builds, err := c.RecentBuilds(context.Background(), instanceFor(srv), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(builds) != 3 {
		t.Fatalf("expected 3 builds, got %d", len(builds))
	}
	if builds[0].BuildID != "b3" || builds[0].Status != domain.BuildFailed {
		t.Errorf("unexpected first build: %+v", builds[0])
	}
	if builds[1].Status != domain.BuildPassed {
		t.Errorf("expected b2 passed, got %v", builds[1].Status)
	}
	if builds[2].Status != domain.BuildOther {
		t.Errorf("expected b1 mapped to other, got %v", builds[2].Status)
	}
	if builds[0].InstanceID != 7 {
		t.Errorf("instance id not propagated: %d", builds[0].InstanceID)
	}
	if !builds[0].Timestamp.Equal(time.Unix(300, 0).UTC()) {
		t.Errorf("unexpected timestamp %v", builds[0].Timestamp)
	}
}

func TestLatestBuild_NilWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := New("", 2*time.Second)
	b, err := c.LatestBuild(context.Background(), instanceFor(srv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil build, got %+v", b)
	}
}

func TestBuild_FetchesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/builds/b9" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id":"b9","status":"success","finished_at":42}`)
	}))
	defer srv.Close()

	c := New("", 2*time.Second)
	b, err := c.Build(context.Background(), instanceFor(srv), "b9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.BuildID != "b9" || b.Status != domain.BuildPassed {
		t.Errorf("unexpected build: %+v", b)
	}
}

func TestClientError_WrapsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("", 2*time.Second)
	_, err := c.RecentBuilds(context.Background(), instanceFor(srv), 10)
	if err == nil {
		t.Fatal("expected error")
	}

	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *domain.ServiceError, got %T", err)
	}
	if svcErr.Service != srv.URL {
		t.Errorf("unexpected service in error: %q", svcErr.Service)
	}
}

func TestClient_RetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"id":"b1","status":"passed","finished_at":1}]`)
	}))
	defer srv.Close()

	c := New("", 2*time.Second)
	builds, err := c.RecentBuilds(context.Background(), instanceFor(srv), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(builds) != 1 {
		t.Fatalf("expected 1 build after retry, got %d", len(builds))
	}
	if calls < 2 {
		t.Errorf("expected at least 2 calls, got %d", calls)
	}
}
