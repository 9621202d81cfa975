package validation

import (
	"context"
	"fmt"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/protocol"
)

// Validate runs the full save-time check over the workflow: main-subgraph
// extraction, cycle detection over the main subgraph, and tool-reference
// resolution. It returns nil or an Errors value.
//
// Every upstream edit path (direct edit, assisted edit, import) calls
// this one function; behavior never depends on how the graph was produced.
func Validate(ctx context.Context, workflow *models.Workflow, tools protocol.ToolRegistry) error {
	mainNodes, mainEdges := ExtractMainSubgraph(workflow.Nodes, workflow.Edges)

	if len(mainNodes) == 0 {
		kind := KindUnreachableEnd
		hint := "no path connects a start node to an end node"

		if !hasNodeType(workflow.Nodes, models.NodeTypeStart) || !hasNodeType(workflow.Nodes, models.NodeTypeEnd) {
			kind = KindDisconnectedGraph
			hint = "workflow needs at least one start node and one end node"
		}

		return Errors{{Kind: kind, Hint: hint}}
	}

	if DetectCycles(mainNodes, mainEdges) {
		return Errors{{
			Kind: KindCycleDetected,
			Hint: "main subgraph contains a cycle; execution order is undefined",
		}}
	}

	if errs := CheckToolReferences(ctx, mainNodes, tools); len(errs) > 0 {
		return errs
	}

	return nil
}

// ExtractMainSubgraph returns the nodes and edges that lie on some path
// from a start node to an end node. Everything else is ignored by the
// engine, never silently executed. Both return values are empty when no
// start node, no end node, or no connecting path exists.
func ExtractMainSubgraph(nodes []*models.WorkflowNode, edges []*models.Edge) ([]*models.WorkflowNode, []*models.Edge) {
	forward := make(map[string][]string)
	backward := make(map[string][]string)

	for _, edge := range edges {
		forward[edge.Source] = append(forward[edge.Source], edge.Target)
		backward[edge.Target] = append(backward[edge.Target], edge.Source)
	}

	starts := make([]string, 0)
	ends := make([]string, 0)

	for _, node := range nodes {
		if node.IsStart() {
			starts = append(starts, node.ID)
		}

		if node.IsEnd() {
			ends = append(ends, node.ID)
		}
	}

	fromStart := reach(starts, forward)
	toEnd := reach(ends, backward)

	mainNodes := make([]*models.WorkflowNode, 0, len(nodes))

	for _, node := range nodes {
		if fromStart[node.ID] && toEnd[node.ID] {
			mainNodes = append(mainNodes, node)
		}
	}

	mainEdges := make([]*models.Edge, 0, len(edges))

	for _, edge := range edges {
		if fromStart[edge.Source] && toEnd[edge.Target] {
			mainEdges = append(mainEdges, edge)
		}
	}

	return mainNodes, mainEdges
}

// DetectCycles reports whether the main subgraph contains a cycle. It
// runs Kahn's algorithm over plain adjacency sets keyed by node ID; any
// node left with inbound edges after the peel is part of a cycle.
func DetectCycles(mainNodes []*models.WorkflowNode, mainEdges []*models.Edge) bool {
	inDegree := make(map[string]int, len(mainNodes))
	adjacency := make(map[string][]string, len(mainNodes))

	for _, node := range mainNodes {
		inDegree[node.ID] = 0
	}

	for _, edge := range mainEdges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0, len(mainNodes))

	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range adjacency[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return visited < len(mainNodes)
}

// CheckToolReferences verifies every tool node in the main subgraph
// carries a stable tool identifier that resolves to a live capability.
func CheckToolReferences(ctx context.Context, mainNodes []*models.WorkflowNode, tools protocol.ToolRegistry) Errors {
	var errs Errors

	for _, node := range mainNodes {
		if node.Type != models.NodeTypeTool {
			continue
		}

		toolID, ok := node.ToolID()
		if !ok {
			errs = append(errs, &Error{
				Kind:   KindToolNotFound,
				NodeID: node.ID,
				Hint:   "tool node is missing a tool_id",
			})

			continue
		}

		info, err := tools.Resolve(ctx, toolID)
		if err != nil {
			// Registry unreachable: fail the check rather than let an
			// unresolved reference through.
			errs = append(errs, &Error{
				Kind:   KindToolNotFound,
				NodeID: node.ID,
				Hint:   fmt.Sprintf("tool registry lookup failed for %q: %v", toolID, err),
			})

			continue
		}

		if !info.Exists {
			errs = append(errs, &Error{
				Kind:   KindToolNotFound,
				NodeID: node.ID,
				Hint:   fmt.Sprintf("tool %q is not registered", toolID),
			})

			continue
		}

		if info.Deprecated {
			errs = append(errs, &Error{
				Kind:   KindToolDeprecated,
				NodeID: node.ID,
				Hint:   fmt.Sprintf("tool %q is deprecated and cannot be referenced by new graphs", toolID),
			})
		}
	}

	return errs
}

func hasNodeType(nodes []*models.WorkflowNode, nodeType string) bool {
	for _, node := range nodes {
		if node.Type == nodeType {
			return true
		}
	}

	return false
}

func reach(from []string, adjacency map[string][]string) map[string]bool {
	seen := make(map[string]bool, len(adjacency))
	queue := append([]string(nil), from...)

	for _, id := range from {
		seen[id] = true
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if !seen[next] {
				seen[next] = true

				queue = append(queue, next)
			}
		}
	}

	return seen
}
