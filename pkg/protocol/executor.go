// Package protocol defines the interfaces and contracts between the
// orchestration core and its pluggable collaborators.
package protocol

import (
	"context"

	"github.com/runweave/runweave/pkg/models"
)

// InvokeRequest carries everything an executor may read for one node
// invocation.
type InvokeRequest struct {
	RunID      string
	WorkflowID string
	Node       *models.WorkflowNode
	Input      map[string]any // merged outputs of traversed upstream nodes
	Variables  map[string]any // workflow variables, read-only
}

// NodeExecutor is the single capability a node executor must satisfy.
// How executors are packaged is out of scope; the engine only ever calls
// Invoke.
type NodeExecutor interface {
	// Invoke runs the node and returns its output. The context carries
	// the per-invocation timeout when the node declares one; executors
	// must respect cancellation.
	Invoke(ctx context.Context, request InvokeRequest) (map[string]any, error)
}

// ExecutorFactory creates executor instances and provides metadata about
// the executor type.
type ExecutorFactory interface {
	// Create creates a new executor instance with the given configuration.
	Create(ctx context.Context, id string, config map[string]any) (NodeExecutor, error)

	// ID returns the unique identifier for this executor type.
	ID() string

	// Name returns the human-readable name for this executor type.
	Name() string

	// Description returns a description of what this executor does.
	Description() string

	// Schema returns the JSON schema for configuring this executor.
	Schema() map[string]any
}
