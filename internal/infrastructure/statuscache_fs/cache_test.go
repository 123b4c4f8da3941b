package statuscache_fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func TestCache_WriteCreatesFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "status.json")

	c := New(path)
	snap := domain.StatusSnapshot{
		GeneratedAt: 123,
		Workflows: []domain.WorkflowStatusEntry{{
			WorkflowUUID: "u",
			Name:         "wf",
			Version:      "1",
			Status:       domain.StatusAllPassing,
		}},
	}
	if err := c.Write(context.Background(), snap); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}

	var got domain.StatusSnapshot
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.GeneratedAt != 123 || len(got.Workflows) != 1 || got.Workflows[0].Status != domain.StatusAllPassing {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestCache_EmptyPathFails(t *testing.T) {
	c := New("")
	if err := c.Write(context.Background(), domain.StatusSnapshot{}); err == nil {
		t.Error("expected error for empty path")
	}
}
