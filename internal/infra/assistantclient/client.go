// Package assistantclient calls a running voice-faq server over HTTP.
package assistantclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yanqian/voice-faq/internal/domain/evaluation"
	"github.com/yanqian/voice-faq/internal/domain/faq"
)

var _ evaluation.Assistant = (*Client)(nil)

// Client posts queries to /api/search.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("assistant base url cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}, nil
}

// Search returns the full answer response.
func (c *Client) Search(ctx context.Context, query string) (faq.Response, error) {
	var out faq.Response
	encoded, err := json.Marshal(faq.Request{Query: query})
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(encoded))
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return out, fmt.Errorf("assistant request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// Ask implements evaluation.Assistant.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	resp, err := c.Search(ctx, question)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}
