package statuscache_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// FSCache writes the latest status snapshot to a JSON file for external
// consumers (dashboards, status bars, the web layer).
type FSCache struct {
	path string
}

func New(path string) *FSCache { return &FSCache{path: path} }

func (c *FSCache) Write(_ context.Context, s domain.StatusSnapshot) error {
	if c.path == "" {
		return errors.New("status cache path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(s)
}
