package testservice_http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/davarch/workflow-monitor/internal/domain"
)

// Client implements the TestBuildGateway against the HTTP API of the
// testing services that test instances bind to. Every failure is
// wrapped in *domain.ServiceError so the aggregator can record it as an
// availability issue instead of aborting the scan.
type Client struct {
	token string
	hc    *http.Client
}

func New(token string, timeout time.Duration) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		token: token,
		hc:    &http.Client{Transport: tr, Timeout: timeout},
	}
}

type buildDTO struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	FinishedAt int64  `json:"finished_at"`
}

func (c *Client) LatestBuild(ctx context.Context, inst domain.TestInstance) (*domain.BuildOutcome, error) {
	builds, err := c.RecentBuilds(ctx, inst, 1)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, nil
	}
	b := builds[0]
	return &b, nil
}

func (c *Client) RecentBuilds(ctx context.Context, inst domain.TestInstance, limit int) ([]domain.BuildOutcome, error) {
	var out []domain.BuildOutcome

	op := func() error {
		listURL := fmt.Sprintf("%s/api/builds?resource=%s&limit=%d",
			trimSlash(inst.ServiceURL), url.QueryEscape(inst.Resource), limit)

		var list []buildDTO
		if err := c.getJSON(ctx, listURL, &list); err != nil {
			return err
		}

		out = out[:0]
		for _, d := range list {
			out = append(out, toOutcome(inst.ID, d))
		}
		return nil
	}

	if err := c.retry(ctx, op); err != nil {
		return nil, &domain.ServiceError{Service: inst.ServiceURL, Err: err}
	}
	return out, nil
}

func (c *Client) Build(ctx context.Context, inst domain.TestInstance, id string) (*domain.BuildOutcome, error) {
	var out domain.BuildOutcome

	op := func() error {
		detailURL := fmt.Sprintf("%s/api/builds/%s?resource=%s",
			trimSlash(inst.ServiceURL), url.PathEscape(id), url.QueryEscape(inst.Resource))

		var d buildDTO
		if err := c.getJSON(ctx, detailURL, &d); err != nil {
			return err
		}
		out = toOutcome(inst.ID, d)
		return nil
	}

	if err := c.retry(ctx, op); err != nil {
		return nil, &domain.ServiceError{Service: inst.ServiceURL, Err: err}
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if sec, _ := strconv.Atoi(ra); sec > 0 {
				select {
				case <-time.After(time.Duration(sec) * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
				return fmt.Errorf("retry after due to 429")
			}
		}

		return fmt.Errorf("testing service 429")
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("testing service %s", resp.Status)
	}

	if resp.StatusCode >= 300 {
		return backoff.Permanent(fmt.Errorf("testing service %s", resp.Status))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func toOutcome(instanceID int64, d buildDTO) domain.BuildOutcome {
	return domain.BuildOutcome{
		InstanceID: instanceID,
		BuildID:    d.ID,
		Status:     mapStatus(d.Status),
		Timestamp:  time.Unix(d.FinishedAt, 0).UTC(),
	}
}

func mapStatus(s string) domain.BuildStatus {
	switch s {
	case "passed", "success", "fixed":
		return domain.BuildPassed
	case "failed", "failure", "error":
		return domain.BuildFailed
	default:
		return domain.BuildOther
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
