// Package target defines the narrow interface through which the promotion
// gate exercises the system under deployment. The gate never assumes
// anything about the target's business logic: it only observes
// success/failure and latency of individual invocations.
package target

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes a single logical call against the target system
type Request struct {
	Operation string                 `json:"operation"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Response carries the opaque result of a target invocation
type Response struct {
	Body     string                 `json:"body"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Target is the system under test/deployment
type Target interface {
	// Invoke issues one request against the target. Callers supply the
	// timeout through ctx; Invoke must honor cancellation.
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// HTTPTarget probes a target system over HTTP. Every operation maps to a
// GET against the configured base URL; the gate only cares about
// reachability, status and latency.
type HTTPTarget struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTarget creates an HTTP-backed target
func NewHTTPTarget(baseURL string, timeout time.Duration) *HTTPTarget {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTarget{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Invoke performs one HTTP probe against the target
func (t *HTTPTarget) Invoke(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for operation %q: %w", req.Operation, err)
	}
	httpReq.Header.Set("X-Gate-Operation", req.Operation)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("operation %q failed: %w", req.Operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("operation %q: reading response: %w", req.Operation, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("operation %q: unexpected status %d", req.Operation, resp.StatusCode)
	}

	return &Response{
		Body: string(body),
		Metadata: map[string]interface{}{
			"status_code": resp.StatusCode,
		},
	}, nil
}
