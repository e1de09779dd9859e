// Package transport provides the uplink HTTP capability: a bearer-token JSON
// POST with a bounded timeout. Retry scheduling lives in the delivery queue,
// not here; a failed POST is a plain error.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fieldtrack/pkg/tracker"
	"fieldtrack/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("fieldtrack/%s", version.Version)

// DefaultTimeout bounds a single POST attempt.
const DefaultTimeout = 10 * time.Second

// Client posts JSON payloads to the tracking server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tracker    *tracker.Tracker
}

// New creates a new Client. A zero timeout falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, tr *tracker.Tracker) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tracker:    tr,
	}
}

// PostJSON sends payload to endpoint with the given bearer token. Any
// transport error or non-2xx status is a failure.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload []byte, authToken string) error {
	u := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	slog.Debug("Uplink request", "endpoint", endpoint, "bytes", len(payload))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.tracker.TrackFailed(endpoint)
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.tracker.TrackFailed(endpoint)
		return fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode)
	}

	c.tracker.TrackDelivered(endpoint)
	return nil
}
