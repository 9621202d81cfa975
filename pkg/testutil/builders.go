// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/runweave/runweave/pkg/models"
)

// CreateTestNode creates a test WorkflowNode with default values that can
// be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:      uuid.New().String(),
		Type:    "log",
		Name:    "Test Node",
		Config:  map[string]any{"message": "test", "level": "info"},
		Enabled: true,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithSideEffecting marks the node as externally visible.
func WithSideEffecting() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.SideEffecting = true
	}
}

// WithTimeoutMs sets the node invocation budget.
func WithTimeoutMs(ms int64) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.TimeoutMs = ms
	}
}

// WithEnabled sets the node enabled status.
func WithEnabled(enabled bool) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Enabled = enabled
	}
}

// StartNode creates a start node with the given ID.
func StartNode(id string) *models.WorkflowNode {
	return CreateTestNode(WithID(id), WithType(models.NodeTypeStart), WithConfig(nil))
}

// EndNode creates an end node with the given ID.
func EndNode(id string) *models.WorkflowNode {
	return CreateTestNode(WithID(id), WithType(models.NodeTypeEnd), WithConfig(nil))
}

// EdgeBetween creates an unconditional edge between two nodes.
func EdgeBetween(source, target string) *models.Edge {
	return &models.Edge{
		ID:     source + "->" + target,
		Source: source,
		Target: target,
	}
}

// ConditionalEdge creates an edge with a condition expression.
func ConditionalEdge(source, target, condition string) *models.Edge {
	edge := EdgeBetween(source, target)
	edge.Condition = condition

	return edge
}

// CreateTestWorkflow creates a minimal valid workflow: start -> node -> end.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	middle := CreateTestNode(WithID("work"))

	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Owner:       "test-user",
		Variables:   map[string]any{"env": "test"},
		Nodes:       []*models.WorkflowNode{StartNode("start"), middle, EndNode("end")},
		Edges: []*models.Edge{
			EdgeBetween("start", "work"),
			EdgeBetween("work", "end"),
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithGraph replaces the workflow's nodes and edges.
func WithGraph(nodes []*models.WorkflowNode, edges []*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
		w.Edges = edges
	}
}

// CreateTestRun creates a run in created status.
func CreateTestRun(workflowID string) *models.Run {
	return &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		ProjectID:  "test-project",
		Status:     models.RunStatusCreated,
		CreatedAt:  time.Now().UTC(),
	}
}
