package httprequest

import (
	"context"

	"github.com/runweave/runweave/pkg/protocol"
)

// Factory creates HTTP request executor instances.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

// Create creates a new HTTP request executor.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "http_request"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "HTTP Request"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Calls an external HTTP endpoint with templated URL, headers and body"
}

// Schema returns the JSON schema for HTTP request executor configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating with run data.",
				"examples":    []string{"https://api.example.com/orders/{{.input.order_id}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers. Values support templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "default": 1},
					"delay":    map[string]any{"type": "integer", "description": "Delay between attempts in milliseconds", "default": 0},
				},
			},
		},
		"required": []string{"url"},
	}
}
