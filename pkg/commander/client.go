// Package commander is the Go SDK for a commander-server. Client talks to the
// HTTP terminal endpoint; GRPCClient talks to the Console gRPC service.
package commander

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LineRequest is the body of POST /api/terminal.
type LineRequest struct {
	ConnectionID string `json:"connection_id"`
	Text         string `json:"text"`
}

// LineResponse is the reply to a LineRequest.
type LineResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Notification is a status line broadcast by the server.
type Notification struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
}

// Client provides a Go SDK for the commander-server HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new commander API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send submits one console line for connID and returns the server's reply.
func (c *Client) Send(ctx context.Context, connID, text string) (string, error) {
	body, err := json.Marshal(LineRequest{ConnectionID: connID, Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/terminal", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting line: %w", err)
	}
	defer resp.Body.Close()

	var out LineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding reply (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	return out.Output, nil
}

// Notifications returns the status lines the server currently retains.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notifications", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var out []Notification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}
	return out, nil
}
