package tool

import (
	"context"

	"github.com/runweave/runweave/pkg/protocol"
)

// Factory creates tool executor instances bound to a registry and invoker.
type Factory struct {
	registry protocol.ToolRegistry
	invoker  protocol.ToolInvoker
}

// NewFactory creates a new factory instance.
func NewFactory(registry protocol.ToolRegistry, invoker protocol.ToolInvoker) protocol.ExecutorFactory {
	return &Factory{registry: registry, invoker: invoker}
}

// Create creates a new tool executor.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(id, config, f.registry, f.invoker)
}

// ID returns the factory ID.
func (f *Factory) ID() string {
	return "tool"
}

// Name returns the factory name.
func (f *Factory) Name() string {
	return "Tool"
}

// Description returns the factory description.
func (f *Factory) Description() string {
	return "Invokes a registered tool capability by its stable identifier"
}

// Schema returns the JSON schema for tool executor configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool_id": map[string]any{
				"type":        "string",
				"description": "Stable identifier of the tool to invoke",
			},
			"args": map[string]any{
				"type":        "object",
				"description": "Arguments passed to the tool. String values support templating.",
			},
		},
		"required": []string{"tool_id"},
	}
}
