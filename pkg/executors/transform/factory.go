package transform

import (
	"context"

	"github.com/runweave/runweave/pkg/protocol"
)

// Factory creates transform executor instances.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

// Create creates a new transform executor.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "transform"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Reshapes run data with a template expression"
}

// Schema returns the JSON schema for transform executor configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression evaluated against the node input. A JSON object result becomes the node output as-is.",
				"examples": []string{
					`{"total": {{.input.amount}}, "currency": "USD"}`,
					"{{.input.user.email}}",
				},
			},
		},
		"required": []string{"expression"},
	}
}
