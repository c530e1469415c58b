// Package facts fetches short animal facts used for standalone posts.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint serves random dog facts.
const DefaultEndpoint = "http://dog-api.kinduff.com/api/facts"

// DefaultTimeout bounds each fact fetch.
const DefaultTimeout = 10 * time.Second

// Client fetches facts from a fact API.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a fact client. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
}

// factsResponse mirrors the fact API payload.
type factsResponse struct {
	Facts []string `json:"facts"`
}

// Fact returns one random fact.
func (c *Client) Fact(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fact request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fact request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read fact response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fact request failed with status %d", resp.StatusCode)
	}

	var fr factsResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return "", fmt.Errorf("failed to decode fact response: %w", err)
	}
	if len(fr.Facts) == 0 {
		return "", fmt.Errorf("fact response carried no facts")
	}
	return fr.Facts[0], nil
}
