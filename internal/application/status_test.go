package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func build(instance int64, id string, status domain.BuildStatus) domain.BuildOutcome {
	return domain.BuildOutcome{
		InstanceID: instance,
		BuildID:    id,
		Status:     status,
		Timestamp:  time.Now(),
	}
}

func TestComputeStatus_NoSuites(t *testing.T) {
	agg := NewStatusAggregator(&domain.MockGateway{})

	report := agg.ComputeStatus(context.Background(), nil)

	if report.Status != domain.StatusNotAvailable {
		t.Errorf("expected not_available, got %s", report.Status)
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(report.Issues))
	}
	if len(report.LatestBuilds) != 0 {
		t.Errorf("expected no builds, got %d", len(report.LatestBuilds))
	}
}

func TestComputeStatus_SuiteWithoutInstances(t *testing.T) {
	agg := NewStatusAggregator(&domain.MockGateway{})

	report := agg.ComputeStatus(context.Background(), []domain.Suite{{ID: 1, Name: "unit"}})

	if report.Status != domain.StatusNotAvailable {
		t.Errorf("expected not_available, got %s", report.Status)
	}
	if len(report.Issues) != 1 {
		t.Errorf("expected 1 issue, got %d", len(report.Issues))
	}
}

func TestComputeStatus_SinglePassingBuild(t *testing.T) {
	gw := &domain.MockGateway{Builds: map[int64][]domain.BuildOutcome{
		1: {build(1, "b1", domain.BuildPassed)},
	}}
	agg := NewStatusAggregator(gw)

	suites := []domain.Suite{{ID: 1, Name: "unit", Instances: []domain.TestInstance{{ID: 1}}}}
	report := agg.ComputeStatus(context.Background(), suites)

	if report.Status != domain.StatusAllPassing {
		t.Errorf("expected all_passing, got %s", report.Status)
	}
	if len(report.LatestBuilds) != 1 {
		t.Errorf("expected 1 build, got %d", len(report.LatestBuilds))
	}
	if len(report.Issues) != 0 {
		t.Errorf("expected no issues, got %v", report.Issues)
	}
}

func TestComputeStatus_MixedOutcomes(t *testing.T) {
	gw := &domain.MockGateway{Builds: map[int64][]domain.BuildOutcome{
		1: {build(1, "b1", domain.BuildPassed)},
		2: {build(2, "b2", domain.BuildFailed)},
	}}
	agg := NewStatusAggregator(gw)

	suites := []domain.Suite{{ID: 1, Name: "unit", Instances: []domain.TestInstance{{ID: 1}, {ID: 2}}}}
	report := agg.ComputeStatus(context.Background(), suites)

	if report.Status != domain.StatusSomePassing {
		t.Errorf("expected some_passing, got %s", report.Status)
	}
}

func TestComputeStatus_OrderIndependent(t *testing.T) {
	gw := &domain.MockGateway{Builds: map[int64][]domain.BuildOutcome{
		1: {build(1, "b1", domain.BuildPassed)},
		2: {build(2, "b2", domain.BuildFailed)},
	}}
	agg := NewStatusAggregator(gw)

	forward := []domain.Suite{{ID: 1, Instances: []domain.TestInstance{{ID: 1}, {ID: 2}}}}
	reversed := []domain.Suite{{ID: 1, Instances: []domain.TestInstance{{ID: 2}, {ID: 1}}}}

	a := agg.ComputeStatus(context.Background(), forward)
	b := agg.ComputeStatus(context.Background(), reversed)

	if a.Status != b.Status {
		t.Errorf("status depends on instance order: %s vs %s", a.Status, b.Status)
	}
	if a.Status != domain.StatusSomePassing {
		t.Errorf("expected some_passing, got %s", a.Status)
	}
}

func TestComputeStatus_AllFailing(t *testing.T) {
	gw := &domain.MockGateway{Builds: map[int64][]domain.BuildOutcome{
		1: {build(1, "b1", domain.BuildFailed)},
		2: {build(2, "b2", domain.BuildFailed)},
	}}
	agg := NewStatusAggregator(gw)

	suites := []domain.Suite{{ID: 1, Instances: []domain.TestInstance{{ID: 1}, {ID: 2}}}}
	report := agg.ComputeStatus(context.Background(), suites)

	if report.Status != domain.StatusAllFailing {
		t.Errorf("expected all_failing, got %s", report.Status)
	}
}

func TestComputeStatus_GatewayErrorIsIssueNotAbort(t *testing.T) {
	gw := &domain.MockGateway{
		Builds: map[int64][]domain.BuildOutcome{
			1: {build(1, "b1", domain.BuildPassed)},
			3: {build(3, "b3", domain.BuildPassed)},
		},
		Errs: map[int64]error{
			2: &domain.ServiceError{Service: "https://ci.example.org", Err: errors.New("boom")},
		},
	}
	agg := NewStatusAggregator(gw)

	suites := []domain.Suite{{ID: 1, Instances: []domain.TestInstance{
		{ID: 1}, {ID: 2, ServiceURL: "https://ci.example.org"}, {ID: 3},
	}}}
	report := agg.ComputeStatus(context.Background(), suites)

	if report.Status != domain.StatusAllPassing {
		t.Errorf("expected all_passing from remaining instances, got %s", report.Status)
	}
	if len(report.LatestBuilds) != 2 {
		t.Errorf("expected 2 builds, got %d", len(report.LatestBuilds))
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(report.Issues))
	}
	if report.Issues[0].Service != "https://ci.example.org" {
		t.Errorf("issue should carry the service URL, got %q", report.Issues[0].Service)
	}
}

func TestComputeStatus_MissingBuildIsIssue(t *testing.T) {
	gw := &domain.MockGateway{Builds: map[int64][]domain.BuildOutcome{}}
	agg := NewStatusAggregator(gw)

	suites := []domain.Suite{{ID: 1, Instances: []domain.TestInstance{{ID: 1, ServiceURL: "u"}}}}
	report := agg.ComputeStatus(context.Background(), suites)

	if report.Status != domain.StatusNotAvailable {
		t.Errorf("expected not_available, got %s", report.Status)
	}
	if len(report.Issues) != 1 || report.Issues[0].Issue != "no build found" {
		t.Errorf("expected 'no build found' issue, got %v", report.Issues)
	}
}
