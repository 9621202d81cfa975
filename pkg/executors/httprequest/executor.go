// Package httprequest provides a node executor that calls external HTTP
// endpoints.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/template"
)

// Config defines the configuration for HTTP request executors.
type Config struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	Retries RetryConfig       `json:"retries"`
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int `json:"attempts"`
	Delay    int `json:"delay"`
}

// Executor performs an HTTP request with templated URL, headers and body.
type Executor struct {
	id     string
	config Config
	client *http.Client
}

// NewExecutor creates a new HTTP request executor.
func NewExecutor(id string, config map[string]any) (*Executor, error) {
	cfg := Config{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Retries: RetryConfig{Attempts: 1, Delay: 0},
	}

	if url, ok := config["url"].(string); ok {
		cfg.URL = url
	} else {
		return nil, errors.New("missing required field 'url'")
	}

	if method, ok := config["method"].(string); ok {
		cfg.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				cfg.Headers[k] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		cfg.Body = body
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok {
			cfg.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok {
			cfg.Retries.Delay = int(delay)
		}
	}

	return &Executor{
		id:     id,
		config: cfg,
		client: &http.Client{},
	}, nil
}

// Invoke performs the HTTP request. The deadline on ctx bounds the whole
// invocation, retries included.
func (e *Executor) Invoke(ctx context.Context, request protocol.InvokeRequest) (map[string]any, error) {
	scope := &template.Scope{
		RunID:      request.RunID,
		WorkflowID: request.WorkflowID,
		Input:      request.Input,
		Variables:  request.Variables,
	}

	renderedURL, err := template.RenderWithScope(e.config.URL, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	urlStr, ok := renderedURL.(string)
	if !ok {
		return nil, errors.New("URL template must render to string")
	}

	var renderedBody string

	if e.config.Body != "" {
		renderedBodyAny, err := template.RenderWithScope(e.config.Body, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		switch body := renderedBodyAny.(type) {
		case string:
			renderedBody = body
		default:
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}

			renderedBody = string(encoded)
		}
	}

	renderedHeaders := make(map[string]string, len(e.config.Headers))

	for key, value := range e.config.Headers {
		renderedValue, err := template.RenderWithScope(value, scope)
		if err != nil {
			renderedHeaders[key] = value
		} else if strVal, ok := renderedValue.(string); ok {
			renderedHeaders[key] = strVal
		} else {
			renderedHeaders[key] = value
		}
	}

	var lastErr error

	for attempt := 1; attempt <= e.config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(e.config.Retries.Delay) * time.Millisecond):
			}
		}

		result, err := e.performRequest(ctx, urlStr, renderedBody, renderedHeaders)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", e.config.Retries.Attempts, lastErr)
}

func (e *Executor) performRequest(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, e.config.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		parsed = string(responseBody)
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		responseHeaders[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
		"headers":     responseHeaders,
	}, nil
}
