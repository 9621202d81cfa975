package log

import (
	"context"

	"github.com/runweave/runweave/pkg/protocol"
)

// Factory creates log executor instances.
type Factory struct{}

// NewFactory creates a new factory instance.
func NewFactory() protocol.ExecutorFactory {
	return &Factory{}
}

// Create creates a new log executor.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(id, config)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "log"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Log"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Logs a message at a configurable level with template support for run data"
}

// Schema returns the JSON schema for log executor configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with run data.",
				"examples": []string{
					"Processing order {{.input.order_id}}",
					"Run {{.run.id}} reached checkpoint",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required": []string{"message"},
	}
}
