package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// WorkflowPoller refreshes the external artifact/link state of every
// version of every active workflow. Each version is processed under its
// resource lock; a version whose lock is held is skipped for this cycle
// and retried on the next tick.
type WorkflowPoller struct {
	workflows domain.WorkflowRepository
	users     domain.UserRepository
	locks     domain.ResourceLocker
	artifacts domain.ArtifactService
	log       *zap.Logger
}

func NewWorkflowPoller(
	workflows domain.WorkflowRepository,
	users domain.UserRepository,
	locks domain.ResourceLocker,
	artifacts domain.ArtifactService,
	log *zap.Logger,
) *WorkflowPoller {
	return &WorkflowPoller{
		workflows: workflows,
		users:     users,
		locks:     locks,
		artifacts: artifacts,
		log:       log,
	}
}

// Run is the job body. A single version's failure never aborts the
// remaining iteration.
func (p *WorkflowPoller) Run(ctx context.Context) error {
	workflows, err := p.workflows.AllWorkflows(ctx)
	if err != nil {
		return err
	}

	for _, wf := range workflows {
		if !wf.Active {
			continue
		}
		versions, err := p.workflows.Versions(ctx, wf.UUID)
		if err != nil {
			p.log.Warn("list versions failed",
				zap.String("workflow", wf.Name), zap.Error(err))
			continue
		}
		for _, v := range versions {
			p.refreshVersion(ctx, wf, v)
		}
	}
	return nil
}

func (p *WorkflowPoller) refreshVersion(ctx context.Context, wf domain.Workflow, v domain.WorkflowVersion) {
	err := p.locks.WithLock(v.LockKey(), func() error {
		// Act as the submitter for the duration of this refresh only;
		// the identity never outlives the iteration.
		var actingAs *domain.User
		if v.SubmitterID != 0 {
			u, err := p.users.User(ctx, v.SubmitterID)
			if err != nil {
				p.log.Debug("submitter lookup failed",
					zap.Int64("user", v.SubmitterID), zap.Error(err))
			} else {
				actingAs = u
			}
		}

		if err := p.artifacts.Refresh(ctx, v, actingAs); err != nil {
			return err
		}
		return p.workflows.TouchVersionLink(ctx, v.ID, time.Now().UTC())
	})

	switch {
	case errors.Is(err, domain.ErrLockUnavailable):
		p.log.Debug("version locked, skipping this cycle",
			zap.String("workflow", wf.Name), zap.String("version", v.Version))
	case err != nil:
		p.log.Warn("workflow refresh failed",
			zap.String("workflow", wf.Name),
			zap.String("version", v.Version),
			zap.Error(err),
		)
	}
}
