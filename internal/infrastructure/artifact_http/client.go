package artifact_http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// Client refreshes the external artifact link of a workflow version.
// The acting user is passed explicitly per request; there is no ambient
// session state.
type Client struct {
	hc *http.Client
}

func New(timeout time.Duration) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{hc: &http.Client{Transport: tr, Timeout: timeout}}
}

func (c *Client) Refresh(ctx context.Context, v domain.WorkflowVersion, actingAs *domain.User) error {
	if v.URI == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URI, nil)
	if err != nil {
		return fmt.Errorf("artifact request: %w", err)
	}
	if actingAs != nil && actingAs.Username != "" {
		req.Header.Set("On-Behalf-Of", actingAs.Username)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("artifact fetch %s: %w", v.URI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The body is drained so the connection can be reused; the content
	// itself is stored elsewhere and not this engine's concern.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("artifact fetch %s: %s", v.URI, resp.Status)
	}
	return nil
}
