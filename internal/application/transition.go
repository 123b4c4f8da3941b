package application

import "github.com/davarch/workflow-monitor/internal/domain"

// DetectTransition classifies the newest-first build list of one test
// instance as a failure onset, a recovery, or nothing.
//
// A single observed failing build already fires FAILED so that a cold
// start on a broken instance is not silent. RECOVERED needs an actual
// flip between two consecutive decisive builds: a recovery is only
// meaningful relative to a prior failing build.
func DetectTransition(builds []domain.BuildOutcome) *domain.TransitionEvent {
	if len(builds) == 0 {
		return nil
	}

	last := builds[0]
	failed := last.Status == domain.BuildFailed

	if len(builds) == 1 {
		if failed {
			return &domain.TransitionEvent{
				InstanceID: last.InstanceID,
				Kind:       domain.TransitionFailed,
				BuildID:    last.BuildID,
			}
		}
		return nil
	}

	prev := builds[1]
	if !last.Status.Decisive() || !prev.Status.Decisive() || prev.Status == last.Status {
		return nil
	}

	kind := domain.TransitionRecovered
	if failed {
		kind = domain.TransitionFailed
	}
	return &domain.TransitionEvent{
		InstanceID: last.InstanceID,
		Kind:       kind,
		BuildID:    last.BuildID,
	}
}
