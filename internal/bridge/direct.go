package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// DirectResult carries the backend reply for verbatim relay to the caller.
type DirectResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// DirectForwarder posts messages straight to the backend's /mcp endpoint and
// relays status, body and content type unchanged. No retries, no
// transformation.
type DirectForwarder struct {
	url    string
	client *http.Client
}

// NewDirectForwarder creates a forwarder for the given backend base URL.
func NewDirectForwarder(baseURL string, client *http.Client) *DirectForwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &DirectForwarder{url: baseURL + "/mcp", client: client}
}

// Forward submits body to the backend and returns its reply.
func (f *DirectForwarder) Forward(ctx context.Context, body []byte) (*DirectResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &DirectResult{StatusCode: resp.StatusCode, ContentType: ct, Body: respBody}, nil
}
