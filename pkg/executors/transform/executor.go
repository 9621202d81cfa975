// Package transform provides a node executor that reshapes run data with
// template expressions.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/template"
)

// Executor evaluates a template expression over the node input.
type Executor struct {
	id         string
	expression string
}

// NewExecutor creates a new transformation executor.
func NewExecutor(id string, config map[string]any) (*Executor, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	return &Executor{
		id:         id,
		expression: expression,
	}, nil
}

// Invoke renders the expression and returns the result.
func (e *Executor) Invoke(_ context.Context, request protocol.InvokeRequest) (map[string]any, error) {
	scope := &template.Scope{
		RunID:      request.RunID,
		WorkflowID: request.WorkflowID,
		Input:      request.Input,
		Variables:  request.Variables,
	}

	result, err := template.RenderWithScope(e.expression, scope)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	if object, ok := result.(map[string]any); ok {
		return object, nil
	}

	return map[string]any{"result": result}, nil
}
