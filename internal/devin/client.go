// Package devin is a thin client for the Devin session-creation API.
package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/microsoft/gitagu/internal/model"
)

// DefaultBaseURL is the production Devin API endpoint
const DefaultBaseURL = "https://api.devin.ai/v1"

// Client creates Devin sessions on behalf of callers. The caller supplies
// its own API key per request; the client holds no credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Devin API client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateSession starts a new Devin session for the given prompt
func (c *Client) CreateSession(ctx context.Context, req model.DevinSessionRequest) (*model.DevinSessionResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":      req.Prompt,
		"snapshot_id": req.SnapshotID,
		"playbook_id": req.PlaybookID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach Devin API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Devin API returned %d: %s", resp.StatusCode, string(body))
	}

	var session model.DevinSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	return &session, nil
}
