package application

import (
	"context"
	"fmt"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// StatusAggregator reduces the latest builds of a set of suites into
// one aggregate status. Availability problems (gateway errors, missing
// builds, empty configuration) are collected as issues, never raised.
type StatusAggregator struct {
	gateway domain.TestBuildGateway
}

func NewStatusAggregator(g domain.TestBuildGateway) *StatusAggregator {
	return &StatusAggregator{gateway: g}
}

// ComputeStatus runs the reduction over the given suites. Passing a
// single-element slice yields a suite-level status, the full set of a
// version's suites yields the workflow-level status.
func (a *StatusAggregator) ComputeStatus(ctx context.Context, suites []domain.Suite) domain.StatusReport {
	report := domain.StatusReport{Status: domain.StatusNotAvailable}

	if len(suites) == 0 {
		report.Issues = append(report.Issues, domain.AvailabilityIssue{
			Issue: "no test suite configured for this workflow",
		})
		return report
	}

	for _, suite := range suites {
		if len(suite.Instances) == 0 {
			report.Issues = append(report.Issues, domain.AvailabilityIssue{
				Issue: fmt.Sprintf("no test instances configured for suite %s", suite.Name),
			})
		}
		for _, inst := range suite.Instances {
			build, err := a.gateway.LatestBuild(ctx, inst)
			if err != nil {
				report.Issues = append(report.Issues, domain.AvailabilityIssue{
					Service:    inst.ServiceURL,
					InstanceID: inst.ID,
					Issue:      err.Error(),
				})
				continue
			}
			if build == nil {
				report.Issues = append(report.Issues, domain.AvailabilityIssue{
					Service:    inst.ServiceURL,
					InstanceID: inst.ID,
					Issue:      "no build found",
				})
				continue
			}
			report.LatestBuilds = append(report.LatestBuilds, *build)
			report.Status = updateStatus(report.Status, build.Passing())
		}
	}

	return report
}

// updateStatus folds one build outcome into the running status. The
// first outcome decides between all-passing and all-failing; any
// outcome of the opposite sign forces some-passing, which absorbs.
func updateStatus(current domain.AggregateStatus, passing bool) domain.AggregateStatus {
	switch current {
	case domain.StatusNotAvailable:
		if passing {
			return domain.StatusAllPassing
		}
		return domain.StatusAllFailing
	case domain.StatusAllPassing:
		if !passing {
			return domain.StatusSomePassing
		}
	case domain.StatusAllFailing:
		if passing {
			return domain.StatusSomePassing
		}
	}
	return current
}
