package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/template"
	"github.com/runweave/runweave/pkg/validation"
)

// failure captures why a run ends in failed status.
type failure struct {
	kind      string
	hint      string
	retryable bool
}

// dispatchOutcome is what one full dispatch pass produced.
type dispatchOutcome struct {
	output    map[string]any
	failure   *failure
	cancelled bool
}

// nodeState tracks one node's progress toward readiness. A node becomes
// decidable when every inbound edge has settled; it runs when at least
// one of them was traversed, and is excluded otherwise. Exclusion cascades
// by settling the excluded node's outbound edges as not traversed.
type nodeState struct {
	node       *models.WorkflowNode
	pending    int // inbound edges not yet settled
	traversed  int // inbound edges settled as traversed
	dispatched bool
}

type nodeResult struct {
	nodeID string
	output map[string]any
	fail   *failure
}

// dispatcher walks the main subgraph of one run. Independent ready nodes
// run concurrently; graph state mutations happen on the coordinator
// goroutine, while node events are appended from the node goroutines and
// sequenced by the event store.
type dispatcher struct {
	engine   *Engine
	run      *models.Run
	workflow *models.Workflow
	input    map[string]any
	logger   *slog.Logger

	states   map[string]*nodeState
	outbound map[string][]*models.Edge
	inbound  map[string][]*models.Edge

	mu      sync.RWMutex
	outputs map[string]map[string]any // settled node outputs, read by edge conditions

	results  chan nodeResult
	inFlight int
	settled  int
}

func newDispatcher(engine *Engine, run *models.Run, workflow *models.Workflow, input map[string]any, logger *slog.Logger) *dispatcher {
	mainNodes, mainEdges := validation.ExtractMainSubgraph(workflow.Nodes, workflow.Edges)

	states := make(map[string]*nodeState, len(mainNodes))
	for _, node := range mainNodes {
		states[node.ID] = &nodeState{node: node}
	}

	outbound := make(map[string][]*models.Edge)
	inbound := make(map[string][]*models.Edge)

	for _, edge := range mainEdges {
		outbound[edge.Source] = append(outbound[edge.Source], edge)
		inbound[edge.Target] = append(inbound[edge.Target], edge)
		states[edge.Target].pending++
	}

	return &dispatcher{
		engine:   engine,
		run:      run,
		workflow: workflow,
		input:    input,
		logger:   logger,
		states:   states,
		outbound: outbound,
		inbound:  inbound,
		outputs:  make(map[string]map[string]any),
		results:  make(chan nodeResult),
	}
}

// dispatch runs until every main-subgraph node has settled, a node
// failure drains the in-flight work, or ctx is cancelled. It returns the
// outcome; the caller records the terminal transition.
func (d *dispatcher) dispatch(ctx context.Context) *dispatchOutcome {
	var firstFailure *failure

	cancelled := false
	halted := func() bool { return cancelled || firstFailure != nil }

	d.dispatchReady(ctx)

	for d.inFlight > 0 || (!halted() && d.settled < len(d.states)) {
		if d.inFlight == 0 {
			// Nothing running and nothing became ready: the remaining
			// nodes are unreachable under the traversed conditions,
			// which the exclusion cascade should have settled already.
			d.logger.WarnContext(ctx, "Dispatch stalled with unsettled nodes",
				"settled", d.settled, "total", len(d.states))

			break
		}

		select {
		case result := <-d.results:
			d.inFlight--
			d.settleResult(ctx, result, &firstFailure)

			if !halted() {
				d.dispatchReady(ctx)
			}
		case <-ctx.Done():
			if !cancelled {
				cancelled = true

				d.logger.InfoContext(ctx, "Cancellation requested, draining in-flight nodes",
					"in_flight", d.inFlight)
			}

			// Keep draining; node goroutines observe the same ctx and
			// come back promptly.
			if d.inFlight > 0 {
				result := <-d.results
				d.inFlight--
				d.settleResult(ctx, result, &firstFailure)
			}
		}
	}

	// The result branch can win the select race against ctx.Done, leaving
	// a cancelled context unobserved by the loop.
	if ctx.Err() != nil && (firstFailure == nil || firstFailure.kind == events.ErrorKindCancelled) {
		cancelled = true
	}

	if cancelled {
		return &dispatchOutcome{cancelled: true}
	}

	if firstFailure != nil {
		return &dispatchOutcome{failure: firstFailure}
	}

	return &dispatchOutcome{output: d.collectOutput()}
}

// dispatchReady starts every node whose inbound edges have all settled.
// Nodes with no traversed inbound edge are excluded and cascade instead
// of running.
func (d *dispatcher) dispatchReady(ctx context.Context) {
	for {
		progressed := false

		for _, id := range d.sortedNodeIDs() {
			state := d.states[id]
			if state.dispatched || state.pending > 0 {
				continue
			}

			state.dispatched = true
			progressed = true

			if state.traversed == 0 && len(d.inbound[id]) > 0 {
				// No inbound edge was traversed: excluded, not failed.
				d.exclude(ctx, state)

				continue
			}

			d.start(ctx, state)
		}

		if !progressed {
			return
		}
	}
}

// exclude settles a node without running it and propagates non-traversal
// to its downstream edges.
func (d *dispatcher) exclude(ctx context.Context, state *nodeState) {
	d.settled++

	d.logger.DebugContext(ctx, "Node excluded from run", "node_id", state.node.ID)

	for _, edge := range d.outbound[state.node.ID] {
		d.settleEdge(edge, false)
	}
}

// start launches one node invocation on its own goroutine.
func (d *dispatcher) start(ctx context.Context, state *nodeState) {
	d.inFlight++

	input := d.nodeInput(state.node)

	go func(node *models.WorkflowNode) {
		output, fail := d.engine.invokeNode(ctx, d.run, d.workflow, node, input)
		d.results <- nodeResult{nodeID: node.ID, output: output, fail: fail}
	}(state.node)
}

// settleResult folds one finished node back into the graph state.
func (d *dispatcher) settleResult(ctx context.Context, result nodeResult, firstFailure **failure) {
	d.settled++

	if result.fail != nil {
		if *firstFailure == nil {
			*firstFailure = result.fail
		}

		return
	}

	d.mu.Lock()
	d.outputs[result.nodeID] = result.output
	d.mu.Unlock()

	for _, edge := range d.outbound[result.nodeID] {
		traversed, err := template.EvaluateCondition(edge.Condition, d.conditionScope(result.nodeID, result.output))
		if err != nil {
			// A condition that cannot be evaluated never traverses.
			d.logger.WarnContext(ctx, "Edge condition failed to evaluate, treating as false",
				"edge_id", edge.ID, "error", err)

			traversed = false
		}

		d.settleEdge(edge, traversed)
	}
}

func (d *dispatcher) settleEdge(edge *models.Edge, traversed bool) {
	target := d.states[edge.Target]
	target.pending--

	if traversed {
		target.traversed++
	}
}

// nodeInput merges the outputs of traversed upstream nodes in sorted
// node-ID order so merges are deterministic. Start nodes read the run
// input.
func (d *dispatcher) nodeInput(node *models.WorkflowNode) map[string]any {
	upstream := d.inbound[node.ID]
	if len(upstream) == 0 {
		return d.input
	}

	sources := make([]string, 0, len(upstream))
	seen := make(map[string]bool, len(upstream))

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, edge := range upstream {
		if _, ok := d.outputs[edge.Source]; ok && !seen[edge.Source] {
			seen[edge.Source] = true
			sources = append(sources, edge.Source)
		}
	}

	sort.Strings(sources)

	merged := make(map[string]any)

	for _, source := range sources {
		for key, value := range d.outputs[source] {
			merged[key] = value
		}
	}

	return merged
}

func (d *dispatcher) conditionScope(nodeID string, output map[string]any) *template.Scope {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := make(map[string]any, len(d.outputs))
	for id, out := range d.outputs {
		nodes[id] = out
	}

	return &template.Scope{
		RunID:      d.run.ID,
		WorkflowID: d.workflow.ID,
		Input:      output,
		Nodes:      nodes,
		Variables:  d.workflow.Variables,
	}
}

// collectOutput gathers the inputs that reached end nodes as the run
// output, keyed by end node ID when there is more than one.
func (d *dispatcher) collectOutput() map[string]any {
	ends := make([]*models.WorkflowNode, 0, 1)

	for _, state := range d.states {
		if state.node.IsEnd() {
			ends = append(ends, state.node)
		}
	}

	sort.Slice(ends, func(i, j int) bool { return ends[i].ID < ends[j].ID })

	if len(ends) == 1 {
		d.mu.RLock()
		defer d.mu.RUnlock()

		return d.outputs[ends[0].ID]
	}

	output := make(map[string]any, len(ends))

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, end := range ends {
		if out, ok := d.outputs[end.ID]; ok {
			output[end.ID] = out
		}
	}

	return output
}

func (d *dispatcher) sortedNodeIDs() []string {
	ids := make([]string, 0, len(d.states))
	for id := range d.states {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// appendEvent writes one node-scoped event for the run.
func (e *Engine) appendEvent(ctx context.Context, run *models.Run, eventType events.EventType, nodeID string, payload map[string]any) {
	_, err := e.log.Append(ctx, &events.RunEvent{
		Type:       eventType,
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		ExecutorID: nodeID,
		Payload:    payload,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append run event",
			"run_id", run.ID, "event_type", eventType, "node_id", nodeID, "error", err)
	}
}
