// Package tool provides a node executor that calls registered tool
// capabilities by their stable identifier.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/template"
)

// Executor resolves a tool against the registry and invokes it.
type Executor struct {
	id       string
	toolID   string
	args     map[string]any
	registry protocol.ToolRegistry
	invoker  protocol.ToolInvoker
}

// NewExecutor creates a new tool executor.
func NewExecutor(id string, config map[string]any, registry protocol.ToolRegistry, invoker protocol.ToolInvoker) (*Executor, error) {
	toolID, ok := config["tool_id"].(string)
	if !ok || toolID == "" {
		return nil, errors.New("missing required field 'tool_id'")
	}

	args, _ := config["args"].(map[string]any)
	if args == nil {
		args = make(map[string]any)
	}

	return &Executor{
		id:       id,
		toolID:   toolID,
		args:     args,
		registry: registry,
		invoker:  invoker,
	}, nil
}

// Invoke resolves the tool and calls it with the rendered arguments. A tool
// missing from the registry at invocation time fails the node; deprecation
// only matters at save time.
func (e *Executor) Invoke(ctx context.Context, request protocol.InvokeRequest) (map[string]any, error) {
	info, err := e.registry.Resolve(ctx, e.toolID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tool '%s': %w", e.toolID, err)
	}

	if !info.Exists {
		return nil, fmt.Errorf("tool '%s' is not registered", e.toolID)
	}

	scope := &template.Scope{
		RunID:      request.RunID,
		WorkflowID: request.WorkflowID,
		Input:      request.Input,
		Variables:  request.Variables,
	}

	args, err := template.RenderConfig(e.args, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render tool arguments: %w", err)
	}

	output, err := e.invoker.Invoke(ctx, e.toolID, args)
	if err != nil {
		return nil, fmt.Errorf("tool '%s' failed: %w", e.toolID, err)
	}

	return output, nil
}
