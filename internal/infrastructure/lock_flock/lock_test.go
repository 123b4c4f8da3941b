package lock_flock

import (
	"errors"
	"testing"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func TestWithLock_RunsBody(t *testing.T) {
	m := New(t.TempDir())

	ran := false
	err := m.WithLock("test-instance-1", func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("body did not run")
	}
}

func TestWithLock_ContentionSkips(t *testing.T) {
	m := New(t.TempDir())

	inner := make(chan error, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		inner <- m.WithLock("key", func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// While the first holder is inside the body, a second attempt must
	// observe contention and perform no work.
	ran := false
	err := m.WithLock("key", func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, domain.ErrLockUnavailable) {
		t.Errorf("expected ErrLockUnavailable, got %v", err)
	}
	if ran {
		t.Error("contended body must not run")
	}

	close(release)
	if err := <-inner; err != nil {
		t.Fatalf("holder failed: %v", err)
	}
}

func TestWithLock_ReleasedAfterBody(t *testing.T) {
	m := New(t.TempDir())

	if err := m.WithLock("key", func() error { return nil }); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := m.WithLock("key", func() error { return nil }); err != nil {
		t.Fatalf("lock not released after body: %v", err)
	}
}

func TestWithLock_ReleasedOnBodyError(t *testing.T) {
	m := New(t.TempDir())

	boom := errors.New("boom")
	if err := m.WithLock("key", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected body error, got %v", err)
	}
	if err := m.WithLock("key", func() error { return nil }); err != nil {
		t.Fatalf("lock not released after error exit: %v", err)
	}
}

func TestWithLock_DistinctKeysDoNotContend(t *testing.T) {
	m := New(t.TempDir())

	err := m.WithLock("a", func() error {
		return m.WithLock("b", func() error { return nil })
	})
	if err != nil {
		t.Fatalf("distinct keys must not contend: %v", err)
	}
}
