package lock_flock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// Manager implements per-resource-key mutual exclusion with one lock
// file per key under a shared directory. flock(2) semantics make the
// lock effective both across goroutines (one descriptor per attempt)
// and across processes sharing the directory.
type Manager struct {
	dir string
}

func New(dir string) *Manager { return &Manager{dir: dir} }

// WithLock runs fn while holding the key's lock. When the key is
// already held anywhere, it returns domain.ErrLockUnavailable without
// blocking; the caller skips this cycle and retries on the next tick.
// The lock is released on every exit path of fn.
func (m *Manager) WithLock(key string, fn func() error) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(m.dir, sanitize(key)+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return domain.ErrLockUnavailable
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, key)
}
