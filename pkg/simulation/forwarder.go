// Package simulation forwards simulation requests to the external decision evaluation engine.
package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds the wait for the evaluation engine.
	DefaultTimeout = 30 * time.Second

	simulatePath = "/api/simulate"

	// maxErrorBody caps how much of an upstream error payload is kept.
	maxErrorBody = 64 << 10
)

// ErrUpstream marks every failure to obtain a simulation result from the engine.
var ErrUpstream = errors.New("simulation upstream failed")

// Request is forwarded to the engine unmodified.
type Request struct {
	Context map[string]any  `json:"context"`
	Content json.RawMessage `json:"content"`
}

// UpstreamError reports a non-2xx answer or an unreachable engine. StatusCode is zero when no
// response was received.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	return "Simulation failed: " + e.Message()
}

// Message is the upstream payload when there is one, otherwise the transport error.
func (e *UpstreamError) Message() string {
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		return body
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return http.StatusText(e.Status())
}

// Status is the upstream status code, or 500 when there was none.
func (e *UpstreamError) Status() int {
	if e.StatusCode < 400 || e.StatusCode > 599 {
		return http.StatusInternalServerError
	}

	return e.StatusCode
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Forwarder posts simulation requests to {baseURL}/api/simulate.
type Forwarder struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewForwarder creates a forwarder. A non-positive timeout uses DefaultTimeout.
func NewForwarder(baseURL string, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Forwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("module", "simulation"),
	}
}

// Simulate returns the engine's response body. A body that is not JSON is returned as a JSON string.
func (f *Forwarder) Simulate(ctx context.Context, request Request) (json.RawMessage, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode simulation request: %w", err)
	}

	url := f.baseURL + simulatePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	f.logger.DebugContext(ctx, "Forwarding simulation", "url", url, "bytes", len(payload))

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.ErrorContext(ctx, "Evaluation engine unreachable", "url", url, "error", err)

		return nil, &UpstreamError{Err: err}
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		f.logger.ErrorContext(ctx, "Evaluation engine returned an error", "status", resp.StatusCode, "body", string(body))

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("evaluation engine returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read simulation result: %w", err)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}

	if !json.Valid(body) {
		encoded, err := json.Marshal(string(body))
		if err != nil {
			return nil, fmt.Errorf("failed to encode simulation result: %w", err)
		}

		return encoded, nil
	}

	return json.RawMessage(body), nil
}
