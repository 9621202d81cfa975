// Package validation implements the save-time graph validator. It is the
// single validation implementation for every edit path; no second copy of
// these checks may exist elsewhere.
package validation

import (
	"fmt"
	"strings"
)

// Validation failure kinds. All of them mean the graph must be fixed
// before a run can start; none is retryable as-is.
const (
	KindDisconnectedGraph = "disconnected_graph"
	KindUnreachableEnd    = "unreachable_end"
	KindCycleDetected     = "cycle_detected"
	KindToolNotFound      = "tool_not_found"
	KindToolDeprecated    = "tool_deprecated"
)

// Error is one structural problem found in a workflow graph.
type Error struct {
	Kind   string `json:"kind"`
	NodeID string `json:"node_id,omitempty"`
	Hint   string `json:"hint"`
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s (node %s): %s", e.Kind, e.NodeID, e.Hint)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Hint)
}

// Errors aggregates every problem found in one validation pass.
type Errors []*Error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}

	return "graph validation failed: " + strings.Join(msgs, "; ")
}

// First returns the leading error, which drives the failure payload when
// a run is rejected.
func (e Errors) First() *Error {
	if len(e) == 0 {
		return nil
	}

	return e[0]
}
