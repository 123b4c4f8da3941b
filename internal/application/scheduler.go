package application

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger computes when a job fires next.
type Trigger interface {
	Next(after time.Time) time.Time
}

type IntervalTrigger struct {
	Every time.Duration
}

func (t IntervalTrigger) Next(after time.Time) time.Time { return after.Add(t.Every) }

type CronTrigger struct {
	schedule cron.Schedule
}

func NewCronTrigger(expr string) (CronTrigger, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return CronTrigger{}, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return CronTrigger{schedule: s}, nil
}

func (t CronTrigger) Next(after time.Time) time.Time { return t.schedule.Next(after) }

// Job is one scheduled unit of work. Bodies must be idempotent under
// re-execution: they run again on retry and on every tick.
type Job struct {
	Name       string
	Trigger    Trigger
	MaxRetries uint64
	// MaxAge discards an invocation that sat queued longer than this
	// instead of running it stale. Zero disables the check.
	MaxAge time.Duration
	Body   func(ctx context.Context) error
}

type invocation struct {
	job      Job
	queuedAt time.Time
}

// Scheduler runs a fixed job table on a bounded worker pool. Ticks of
// the same job are never overlapped; a tick that arrives while the
// previous invocation is still in flight is dropped, not queued.
type Scheduler struct {
	log           *zap.Logger
	jobs          []Job
	workers       int
	pauseFile     string
	retryInterval time.Duration

	queue chan invocation

	mu       sync.Mutex
	inflight map[string]bool
}

func NewScheduler(log *zap.Logger, jobs []Job, workers int, pauseFile string) *Scheduler {
	if workers <= 0 {
		workers = 2
	}
	return &Scheduler{
		log:           log,
		jobs:          jobs,
		workers:       workers,
		pauseFile:     pauseFile,
		retryInterval: 2 * time.Second,
		queue:         make(chan invocation, len(jobs)*2),
		inflight:      make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.fire(ctx, job)
		}(job)
	}

	wg.Wait()
}

// Kick queues an immediate invocation of the named job, subject to the
// same no-overlap rule as a regular tick.
func (s *Scheduler) Kick(name string) {
	for _, job := range s.jobs {
		if job.Name == name {
			s.enqueue(job)
			return
		}
	}
	s.log.Warn("kick for unknown job", zap.String("job", name))
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	next := job.Trigger.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if s.isPaused() {
				s.log.Debug("paused: skipping tick", zap.String("job", job.Name))
			} else {
				s.enqueue(job)
			}
			next = job.Trigger.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}

func (s *Scheduler) enqueue(job Job) {
	s.mu.Lock()
	if s.inflight[job.Name] {
		s.mu.Unlock()
		s.log.Debug("previous invocation still in flight, tick dropped",
			zap.String("job", job.Name))
		return
	}
	s.inflight[job.Name] = true
	s.mu.Unlock()

	select {
	case s.queue <- invocation{job: job, queuedAt: time.Now()}:
	default:
		s.clearInflight(job.Name)
		s.log.Warn("queue full, tick dropped", zap.String("job", job.Name))
	}
}

func (s *Scheduler) clearInflight(name string) {
	s.mu.Lock()
	delete(s.inflight, name)
	s.mu.Unlock()
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case inv := <-s.queue:
			s.execute(ctx, inv)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, inv invocation) {
	defer s.clearInflight(inv.job.Name)

	if inv.job.MaxAge > 0 {
		if age := time.Since(inv.queuedAt); age > inv.job.MaxAge {
			s.log.Warn("stale invocation discarded",
				zap.String("job", inv.job.Name),
				zap.Duration("age", age),
			)
			return
		}
	}

	started := time.Now()
	op := func() error { return s.runBody(ctx, inv.job) }
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryInterval), inv.job.MaxRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		// Failed for this tick; the trigger will fire again.
		s.log.Error("job failed",
			zap.String("job", inv.job.Name),
			zap.Duration("took", time.Since(started)),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("job completed",
		zap.String("job", inv.job.Name),
		zap.Duration("took", time.Since(started)),
	)
}

func (s *Scheduler) runBody(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Body(ctx)
}
