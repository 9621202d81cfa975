package models

import "time"

// Node types with engine-level meaning. Any other type resolves through
// the executor registry.
const (
	NodeTypeStart = "start"
	NodeTypeEnd   = "end"
	NodeTypeTool  = "tool"
)

// Workflow is a directed graph of nodes and edges. The orchestration core
// consumes workflows read-only; authoring and persistence of the graph
// itself belong to the graph store collaborator.
type Workflow struct {
	ID          string          `json:"id"          validate:"required"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Edges       []*Edge         `json:"edges"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowNode is a single unit of work in a workflow graph.
type WorkflowNode struct {
	ID            string         `json:"id"             validate:"required"`
	Type          string         `json:"type"           validate:"required"`
	Name          string         `json:"name"           validate:"required,min=1"`
	Config        map[string]any `json:"config"`
	SideEffecting bool           `json:"side_effecting"` // Externally visible; gated and confirmed before invocation
	TimeoutMs     int64          `json:"timeout_ms"`     // Per-invocation budget, 0 = no limit
	Enabled       bool           `json:"enabled"`
}

// IsStart reports whether the node is an entry point of the graph.
func (n *WorkflowNode) IsStart() bool {
	return n.Type == NodeTypeStart
}

// IsEnd reports whether the node is an exit point of the graph.
func (n *WorkflowNode) IsEnd() bool {
	return n.Type == NodeTypeEnd
}

// ToolID returns the stable tool identifier carried by a tool node.
func (n *WorkflowNode) ToolID() (string, bool) {
	id, ok := n.Config["tool_id"].(string)

	return id, ok && id != ""
}

// Edge is a directed control-flow connection between two nodes. Condition
// is an optional boolean template expression over upstream outputs; an
// empty condition always traverses.
type Edge struct {
	ID        string `json:"id"        validate:"required"`
	Source    string `json:"source"    validate:"required"`
	Target    string `json:"target"    validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// NodeByID finds a node in the workflow by its ID.
func (w *Workflow) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}
