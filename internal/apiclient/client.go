package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"planproc/internal/api"
	"planproc/internal/services"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the daemon listening at baseURL. The token may
// be empty when the daemon runs without authentication.
func New(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status returns the daemon's runtime status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// Plans lists plan summaries, optionally filtered to the given phases.
func (c *Client) Plans(ctx context.Context, phases ...string) ([]api.PlanSummary, error) {
	path := "/api/plans"
	if len(phases) > 0 {
		query := url.Values{}
		for _, phase := range phases {
			query.Add("phase", phase)
		}
		path += "?" + query.Encode()
	}
	var resp api.PlanListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

// Plan returns the full record for one plan.
func (c *Client) Plan(ctx context.Context, planID string) (api.PlanDetail, error) {
	var resp api.PlanResponse
	err := c.do(ctx, http.MethodGet, "/api/plans/"+url.PathEscape(planID), nil, &resp)
	return resp.Plan, err
}

// InitializePlan registers a plan for processing.
func (c *Client) InitializePlan(ctx context.Context, req api.InitializePlanRequest) (api.PlanDetail, error) {
	var resp api.PlanResponse
	err := c.do(ctx, http.MethodPost, "/api/plans", req, &resp)
	return resp.Plan, err
}

// SendEvent delivers one raw event envelope to a plan.
func (c *Client) SendEvent(ctx context.Context, planID string, envelope json.RawMessage) (api.PlanDetail, error) {
	var resp api.PlanResponse
	err := c.do(ctx, http.MethodPost, "/api/plans/"+url.PathEscape(planID)+"/events", envelope, &resp)
	return resp.Plan, err
}

// FailPlan marks a plan failed with the given reason.
func (c *Client) FailPlan(ctx context.Context, planID, reason string) (api.PlanDetail, error) {
	var resp api.PlanResponse
	err := c.do(ctx, http.MethodPost, "/api/plans/"+url.PathEscape(planID)+"/fail", api.FailPlanRequest{Reason: reason}, &resp)
	return resp.Plan, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	switch payload := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(payload)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	message := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "apiclient", "request", message, nil)
	case http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, "apiclient", "request", message, nil)
	case http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "apiclient", "request", "daemon rejected API token", nil)
	default:
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, message)
	}
}
