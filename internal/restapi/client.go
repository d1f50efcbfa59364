// Package restapi fetches point-in-time snapshots of agents, active calls
// and queues from the call server's REST boundary. Snapshots re-baseline
// the store around the gaps the streaming channel cannot replay.
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dialdesk/console/internal/auth"
	"github.com/dialdesk/console/internal/types"
)

// Client calls the snapshot endpoints with the operator's bearer token
type Client struct {
	baseURL    string
	credential *auth.Credential
	httpClient *http.Client
}

// NewClient creates a client pointing at the given API base URL
// (e.g. "http://localhost:3001/api").
func NewClient(baseURL string, credential *auth.Credential, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetAgents fetches the agent snapshot
func (c *Client) GetAgents(ctx context.Context) ([]types.Agent, error) {
	var agents []types.Agent
	if err := c.getJSON(ctx, "/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetActiveCalls fetches the active call snapshot
func (c *Client) GetActiveCalls(ctx context.Context) ([]types.Call, error) {
	var calls []types.Call
	if err := c.getJSON(ctx, "/calls/active", &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// GetQueues fetches the queue snapshot with live counters
func (c *Client) GetQueues(ctx context.Context) ([]types.Queue, error) {
	var queues []types.Queue
	if err := c.getJSON(ctx, "/queues", &queues); err != nil {
		return nil, err
	}
	return queues, nil
}

// getJSON performs an authenticated GET and decodes the response into out.
// An empty body decodes as no entities; missing fields stay zero values.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}

	token, err := c.credential.Token()
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", path, err)
	}
	// an absent or null body means no entities, not a parse failure
	if len(body) == 0 || string(body) == "null" {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
