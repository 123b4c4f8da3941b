package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// recentBuildLimit bounds how many builds are fetched per instance when
// scanning for state transitions.
const recentBuildLimit = 10

// buildSummary is the payload attached to a build status notification.
type buildSummary struct {
	Workflow   string `json:"workflow"`
	Version    string `json:"version"`
	Suite      string `json:"suite"`
	Instance   string `json:"instance"`
	Service    string `json:"service"`
	BuildID    string `json:"build_id"`
	Status     string `json:"status"`
	FinishedAt int64  `json:"finished_at"`
}

// BuildPoller scans the latest version of every active workflow for
// build state transitions and turns them into notifications. After the
// scan it publishes a status snapshot for external consumers.
type BuildPoller struct {
	workflows  domain.WorkflowRepository
	users      domain.UserRepository
	gateway    domain.TestBuildGateway
	locks      domain.ResourceLocker
	factory    *NotificationFactory
	aggregator *StatusAggregator
	status     domain.StatusWriter
	log        *zap.Logger
}

func NewBuildPoller(
	workflows domain.WorkflowRepository,
	users domain.UserRepository,
	gateway domain.TestBuildGateway,
	locks domain.ResourceLocker,
	factory *NotificationFactory,
	aggregator *StatusAggregator,
	status domain.StatusWriter,
	log *zap.Logger,
) *BuildPoller {
	return &BuildPoller{
		workflows:  workflows,
		users:      users,
		gateway:    gateway,
		locks:      locks,
		factory:    factory,
		aggregator: aggregator,
		status:     status,
		log:        log,
	}
}

// Run is the job body. Idempotent: re-running over unchanged builds
// creates no second notification because the dedup key already exists.
func (p *BuildPoller) Run(ctx context.Context) error {
	workflows, err := p.workflows.AllWorkflows(ctx)
	if err != nil {
		return err
	}

	snapshot := domain.StatusSnapshot{GeneratedAt: time.Now().Unix()}
	for _, wf := range workflows {
		if !wf.Active {
			continue
		}

		latest, err := p.workflows.LatestVersion(ctx, wf.UUID)
		if err != nil {
			p.log.Warn("latest version lookup failed",
				zap.String("workflow", wf.Name), zap.Error(err))
			continue
		}
		if latest == nil {
			continue
		}

		suites, err := p.workflows.SuitesWithInstances(ctx, latest.ID)
		if err != nil {
			p.log.Warn("list suites failed",
				zap.String("workflow", wf.Name), zap.Error(err))
			continue
		}

		for _, suite := range suites {
			for _, inst := range suite.Instances {
				p.scanInstance(ctx, wf, *latest, suite, inst)
			}
		}

		report := p.aggregator.ComputeStatus(ctx, suites)
		snapshot.Workflows = append(snapshot.Workflows, domain.WorkflowStatusEntry{
			WorkflowUUID: wf.UUID.String(),
			Name:         wf.Name,
			Version:      latest.Version,
			Status:       report.Status,
			Issues:       report.Issues,
		})
	}

	if err := p.status.Write(ctx, snapshot); err != nil {
		p.log.Warn("status snapshot write failed", zap.Error(err))
	}
	return nil
}

func (p *BuildPoller) scanInstance(ctx context.Context, wf domain.Workflow, version domain.WorkflowVersion, suite domain.Suite, inst domain.TestInstance) {
	err := p.locks.WithLock(inst.LockKey(), func() error {
		builds, err := p.gateway.RecentBuilds(ctx, inst, recentBuildLimit)
		if err != nil {
			return err
		}
		if len(builds) == 0 {
			return nil
		}

		// Refresh each build's detail record; failures here only cost
		// freshness, not the transition scan.
		for _, b := range builds {
			if _, err := p.gateway.Build(ctx, inst, b.BuildID); err != nil {
				p.log.Debug("build detail fetch failed",
					zap.String("build", b.BuildID), zap.Error(err))
			}
		}

		event := DetectTransition(builds)
		if event == nil {
			return nil
		}

		subscribers, err := p.users.Subscribers(ctx, wf.UUID)
		if err != nil {
			return err
		}

		last := builds[0]
		payload := buildSummary{
			Workflow:   wf.Name,
			Version:    version.Version,
			Suite:      suite.Name,
			Instance:   inst.Name,
			Service:    inst.ServiceURL,
			BuildID:    last.BuildID,
			Status:     string(last.Status),
			FinishedAt: last.Timestamp.Unix(),
		}
		_, err = p.factory.CreateIfAbsent(ctx, *event, subscribers, payload)
		return err
	})

	switch {
	case errors.Is(err, domain.ErrLockUnavailable):
		p.log.Debug("instance locked, skipping this cycle",
			zap.String("workflow", wf.Name), zap.String("instance", inst.Name))
	case err != nil:
		p.log.Warn("build scan failed",
			zap.String("workflow", wf.Name),
			zap.String("instance", inst.Name),
			zap.Error(err),
		)
	}
}
