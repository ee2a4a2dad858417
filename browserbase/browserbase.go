// Package browserbase creates remote Chromium sessions on Browserbase.
package browserbase

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
)

const DefaultBaseURL = "https://api.browserbase.com/v1"

var ErrMissingCredentials = errors.New("browserbase: api key and project id are required")

type Client struct {
	apiKey    string
	projectID string
	baseURL   string
	http      *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(apiKey, projectID string, opts ...Option) (*Client, error) {
	if apiKey == "" || projectID == "" {
		return nil, ErrMissingCredentials
	}

	c := &Client{
		apiKey:    apiKey,
		projectID: projectID,
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Session is a remote browser reachable over CDP at ConnectURL.
type Session struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
	Status     string `json:"status"`
}

// CreateSession starts a session that is torn down once its CDP
// connection closes.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	body := map[string]any{
		"projectId": c.projectID,
		"keepAlive": false,
	}

	var s Session
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.ConnectURL == "" {
		return nil, errors.New("browserbase: session has no connect url")
	}

	return &s, nil
}

// ReleaseSession asks Browserbase to stop a session early.
func (c *Client) ReleaseSession(ctx context.Context, id string) error {
	body := map[string]any{
		"projectId": c.projectID,
		"status":    "REQUEST_RELEASE",
	}

	if err := c.do(ctx, http.MethodPost, "/sessions/"+id, body, nil); err != nil {
		return fmt.Errorf("failed to release session %s: %w", id, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BB-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
