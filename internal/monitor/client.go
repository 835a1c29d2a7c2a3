package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/store"
)

// Client reads review queue and inference status from a TaskHarvester server.
type Client struct {
	baseURL string
	client  *http.Client
}

// InferenceStatus is the inference endpoint status as served by the API.
type InferenceStatus struct {
	inference.Status
	Error string `json:"error,omitempty"`
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Stats fetches item counts.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	status, err := c.get(ctx, "/api/v1/action-items/stats", &stats)
	if err != nil {
		return store.Stats{}, err
	}
	if status == http.StatusNotFound {
		return store.Stats{}, fmt.Errorf("server has no item store configured")
	}
	if status != http.StatusOK {
		return store.Stats{}, fmt.Errorf("stats request failed with status %d", status)
	}
	return stats, nil
}

// InferenceStatus fetches the inference endpoint status. The server answers
// 503 with a body when the endpoint is down, which is not an error here.
func (c *Client) InferenceStatus(ctx context.Context) (InferenceStatus, error) {
	var st InferenceStatus
	status, err := c.get(ctx, "/api/v1/inference/status", &st)
	if err != nil {
		return InferenceStatus{}, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return InferenceStatus{}, fmt.Errorf("inference status request failed with status %d", status)
	}
	return st, nil
}

func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusServiceUnavailable {
		if err := json.Unmarshal(body, out); err != nil {
			return 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
