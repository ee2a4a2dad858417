package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	DefaultBucket = "trip-images"
	DefaultPrefix = "scraped"

	maxErrorBody = 512
)

var _ Uploader = (*EdgeFunctionUploader)(nil)

// EdgeFunctionUploader relays images through a server side function that
// fetches the source URL and writes it to a storage bucket.
type EdgeFunctionUploader struct {
	endpoint string
	apiKey   string
	bucket   string
	prefix   string
	client   *http.Client
}

type EdgeOption func(*EdgeFunctionUploader)

func WithBucket(bucket string) EdgeOption {
	return func(u *EdgeFunctionUploader) {
		if bucket != "" {
			u.bucket = bucket
		}
	}
}

func WithPrefix(prefix string) EdgeOption {
	return func(u *EdgeFunctionUploader) {
		if prefix != "" {
			u.prefix = prefix
		}
	}
}

func WithHTTPClient(c *http.Client) EdgeOption {
	return func(u *EdgeFunctionUploader) {
		u.client = c
	}
}

func NewEdgeFunctionUploader(endpoint, apiKey string, opts ...EdgeOption) *EdgeFunctionUploader {
	u := &EdgeFunctionUploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		bucket:   DefaultBucket,
		prefix:   DefaultPrefix,
		client:   &http.Client{Timeout: DefaultRequestTimeout},
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

type edgeRequest struct {
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Upsert bool   `json:"upsert"`
}

type edgeResponse struct {
	OK        bool   `json:"ok"`
	PublicURL string `json:"publicUrl"`
	Error     string `json:"error"`
}

func (u *EdgeFunctionUploader) Upload(ctx context.Context, sourceURL string) (string, error) {
	body, err := json.Marshal(edgeRequest{
		URL:    sourceURL,
		Bucket: u.bucket,
		Prefix: u.prefix,
		Upsert: true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create relay request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("apikey", u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return "", fmt.Errorf("relay returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out edgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode relay response: %w", err)
	}

	if !out.OK || out.PublicURL == "" {
		return "", fmt.Errorf("relay rejected image: %s", out.Error)
	}

	return out.PublicURL, nil
}
