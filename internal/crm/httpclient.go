package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/convoyhq/convoy/internal/ratelimit"
)

// RESTClient is the shared transport every vendor leaf adapter embeds,
// grounded on the teacher's venice.Client: an explicit *http.Client,
// bounded retries with backoff, and a per-instance token bucket for
// vendor-side throttling (§4.5's "5 req/s" note).
type RESTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.Bucket

	// AuthHeader, when set, is added to every outgoing request.
	AuthHeaderName  string
	AuthHeaderValue string
}

// NewRESTClient builds a REST transport with sane defaults.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Limiter:    ratelimit.NewBucket(ratelimit.BucketConfig{RequestsPerSecond: 5, BurstSize: 10}),
	}
}

// DoJSON issues method/path with an optional JSON body, decoding a JSON
// response into out (skipped if out is nil), retrying transient (5xx,
// network) failures up to MaxRetries times with linear backoff.
func (c *RESTClient) DoJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	if !c.Limiter.Allow() {
		if !c.Limiter.Wait(ctx.Done()) {
			return 0, fmt.Errorf("crm: rate limiter wait cancelled: %w", ctx.Err())
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("crm: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.RetryDelay * time.Duration(attempt)):
			}
		}

		status, respBody, err := c.do(ctx, method, path, payload)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("crm: vendor returned %d", status)
			continue
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return status, fmt.Errorf("crm: decode response: %w", err)
			}
		}
		return status, nil
	}
	return 0, fmt.Errorf("crm: request failed after %d attempts: %w", c.MaxRetries+1, lastErr)
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("crm: build request: %w", err)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.AuthHeaderName != "" {
		req.Header.Set(c.AuthHeaderName, c.AuthHeaderValue)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("crm: http do: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("crm: read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Ping issues a lightweight GET against path and reports Health.
func (c *RESTClient) Ping(ctx context.Context, path string) Health {
	start := time.Now()
	status, _, err := c.do(ctx, http.MethodGet, path, nil)
	latency := time.Since(start)
	if err != nil {
		return Health{Healthy: false, Latency: latency, Message: err.Error()}
	}
	if status >= 500 {
		return Health{Healthy: false, Latency: latency, Message: fmt.Sprintf("status %d", status)}
	}
	return Health{Healthy: true, Latency: latency}
}
