package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testScheduler(jobs []Job) *Scheduler {
	s := NewScheduler(zap.NewNop(), jobs, 1, "")
	s.retryInterval = time.Millisecond
	return s
}

func TestIntervalTrigger_Next(t *testing.T) {
	trig := IntervalTrigger{Every: 45 * time.Second}
	now := time.Now()

	if got := trig.Next(now); got != now.Add(45*time.Second) {
		t.Errorf("expected +45s, got %v", got.Sub(now))
	}
}

func TestCronTrigger_MinuteBoundary(t *testing.T) {
	trig, err := NewCronTrigger("* * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2026, 3, 1, 10, 30, 12, 0, time.UTC)
	next := trig.Next(now)
	if next.Second() != 0 || next.Minute() != 31 {
		t.Errorf("expected next minute boundary, got %v", next)
	}
}

func TestCronTrigger_DailyAtOne(t *testing.T) {
	trig, err := NewCronTrigger("0 1 * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.Local)
	next := trig.Next(now)
	if next.Hour() != 1 || next.Minute() != 0 || next.Day() != 2 {
		t.Errorf("expected 01:00 next day, got %v", next)
	}
}

func TestCronTrigger_BadExpression(t *testing.T) {
	if _, err := NewCronTrigger("not a cron"); err == nil {
		t.Error("expected an error for an invalid expression")
	}
}

func TestScheduler_StaleInvocationDiscarded(t *testing.T) {
	var calls int32
	job := Job{
		Name:    "j",
		Trigger: IntervalTrigger{Every: time.Hour},
		MaxAge:  10 * time.Millisecond,
		Body: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}
	s := testScheduler([]Job{job})

	s.execute(context.Background(), invocation{
		job:      job,
		queuedAt: time.Now().Add(-time.Second),
	})

	if atomic.LoadInt32(&calls) != 0 {
		t.Error("stale invocation must be discarded, not executed")
	}
}

func TestScheduler_RetriesUpToMaxRetries(t *testing.T) {
	var calls int32
	job := Job{
		Name:       "j",
		Trigger:    IntervalTrigger{Every: time.Hour},
		MaxRetries: 3,
		Body: func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	}
	s := testScheduler([]Job{job})

	s.execute(context.Background(), invocation{job: job, queuedAt: time.Now()})

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestScheduler_ZeroRetriesFailureIsNotFatal(t *testing.T) {
	var calls int32
	job := Job{
		Name:    "j",
		Trigger: IntervalTrigger{Every: time.Hour},
		Body: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("boom")
		},
	}
	s := testScheduler([]Job{job})

	s.execute(context.Background(), invocation{job: job, queuedAt: time.Now()})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestScheduler_PanicContained(t *testing.T) {
	job := Job{
		Name:    "j",
		Trigger: IntervalTrigger{Every: time.Hour},
		Body: func(context.Context) error {
			panic("job body exploded")
		},
	}
	s := testScheduler([]Job{job})

	// Must not propagate.
	s.execute(context.Background(), invocation{job: job, queuedAt: time.Now()})
}

func TestScheduler_SameJobTicksNotOverlapped(t *testing.T) {
	job := Job{Name: "j", Trigger: IntervalTrigger{Every: time.Hour}, Body: func(context.Context) error { return nil }}
	s := testScheduler([]Job{job})

	s.enqueue(job)
	s.enqueue(job)

	if got := len(s.queue); got != 1 {
		t.Errorf("second tick while in flight must be dropped, queue has %d", got)
	}
}

func TestScheduler_RunsQueuedJob(t *testing.T) {
	done := make(chan struct{})
	var once int32
	job := Job{
		Name:    "j",
		Trigger: IntervalTrigger{Every: 5 * time.Millisecond},
		Body: func(context.Context) error {
			if atomic.CompareAndSwapInt32(&once, 0, 1) {
				close(done)
			}
			return nil
		},
	}
	s := testScheduler([]Job{job})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never executed")
	}
}
