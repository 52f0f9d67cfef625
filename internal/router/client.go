// Package router implements the HTTP client contract for the optional
// "enhanced" remote router service (§4.7, §6.3). The core only ever calls
// this client; the router's own implementation is an external collaborator.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corebus/eventbus/internal/envelope"
)

const (
	healthCheckTimeout  = 5 * time.Second
	retryInitialBackoff = 100 * time.Millisecond
	retryMaxElapsed     = 2 * time.Second
)

// Client talks to a remote router over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client pointed at baseURL (no trailing slash required).
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// HealthCheck reports whether the router answers GET /health within 5
// seconds. A failure of any kind (timeout, non-2xx, network error) is
// reported as false, never as an error — callers treat unavailability as
// non-fatal (§5).
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer drainAndClose(resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// RegisterWorker registers workerID under namespace. A non-2xx response is
// fatal to the caller (§6.3).
func (c *Client) RegisterWorker(ctx context.Context, workerID, namespace string, capabilities []string) error {
	body := map[string]any{
		"namespace":    namespace,
		"capabilities": capabilities,
	}

	return c.postExpectSuccess(ctx, fmt.Sprintf("/api/v1/workers/%s/register", workerID), body)
}

// Route asks the router to fan envelope out and returns the names of the
// queues it was routed to. Transient failures (network errors, 5xx
// responses) are retried with exponential backoff up to retryMaxElapsed;
// a malformed request or a 4xx response is permanent and returned
// immediately.
func (c *Client) Route(ctx context.Context, evt envelope.Event) ([]string, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	var routedQueues []string

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/events/route", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build route request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("route request: %w", err)
		}
		defer drainAndClose(resp.Body)

		if resp.StatusCode >= 500 {
			return fmt.Errorf("route request returned status %d", resp.StatusCode)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("route request returned status %d", resp.StatusCode))
		}

		var decoded struct {
			RoutedQueues []string `json:"routedQueues"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode route response: %w", err))
		}

		routedQueues = decoded.RoutedQueues

		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return nil, err
	}

	return routedQueues, nil
}

// Subscribe and Unsubscribe are best-effort: failures are returned to the
// caller so it can log them, but the spec requires callers not to propagate
// the failure as a fatal error (§4.6, §6.3).
func (c *Client) Subscribe(ctx context.Context, workerID string, eventTypes []string) error {
	body := map[string]any{"eventTypes": eventTypes}
	return c.postExpectSuccess(ctx, fmt.Sprintf("/api/v1/workers/%s/subscribe", workerID), body)
}

func (c *Client) Unsubscribe(ctx context.Context, workerID string, eventTypes []string) error {
	body := map[string]any{"eventTypes": eventTypes}
	return c.postExpectSuccess(ctx, fmt.Sprintf("/api/v1/workers/%s/unsubscribe", workerID), body)
}

// postExpectSuccess retries transient failures (network errors, 5xx
// responses) with exponential backoff up to retryMaxElapsed; a malformed
// request or a 4xx response is permanent and returned immediately.
func (c *Client) postExpectSuccess(ctx context.Context, path string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request for %s: %w", path, err))
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}
		defer drainAndClose(resp.Body)

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%s returned status %d", path, resp.StatusCode))
		}

		return nil
	}

	return backoff.Retry(operation, c.retryPolicy(ctx))
}

// retryPolicy returns an exponential backoff bounded by retryMaxElapsed and
// cancelled alongside ctx.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialBackoff
	bo.MaxElapsedTime = retryMaxElapsed

	return backoff.WithContext(bo, ctx)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
