package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/otelhelper"
	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/supervision"
)

// invokeNode runs a single node end to end: node_start, supervision and
// confirmation for side-effecting nodes, the executor call under the
// node's timeout budget, and the node_complete or node_error record.
// It returns the node output, or the failure the run should carry.
func (e *Engine) invokeNode(ctx context.Context, run *models.Run, workflow *models.Workflow, node *models.WorkflowNode, input map[string]any) (map[string]any, *failure) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.invoke_node",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type))
	defer span.End()

	if node.IsStart() || node.IsEnd() || !node.Enabled {
		// Boundary and disabled nodes pass their input through without
		// executor involvement or node events.
		return input, nil
	}

	e.appendEvent(ctx, run, events.NodeStartEvent, node.ID, map[string]any{
		"node_type": node.Type,
	})

	if node.SideEffecting {
		if fail := e.authorizeNodeInvoke(ctx, run, node); fail != nil {
			e.appendEvent(ctx, run, events.NodeErrorEvent, node.ID,
				events.ErrorPayload(fail.kind, fail.hint, fail.retryable))
			otelhelper.SetError(span, errors.New(fail.hint))

			return nil, fail
		}

		if fail := e.confirmNodeInvoke(ctx, run, workflow, node); fail != nil {
			e.appendEvent(ctx, run, events.NodeErrorEvent, node.ID,
				events.ErrorPayload(fail.kind, fail.hint, fail.retryable))
			otelhelper.SetError(span, errors.New(fail.hint))

			return nil, fail
		}
	}

	executor, err := e.registry.Create(ctx, node.Type, node.ID, node.Config)
	if err != nil {
		fail := &failure{kind: events.ErrorKindRuntime, hint: err.Error(), retryable: false}

		e.appendEvent(ctx, run, events.NodeErrorEvent, node.ID,
			events.ErrorPayload(fail.kind, fail.hint, fail.retryable))
		otelhelper.SetError(span, err)

		return nil, fail
	}

	invokeCtx := ctx
	if node.TimeoutMs > 0 {
		var cancel context.CancelFunc

		invokeCtx, cancel = context.WithTimeout(ctx, time.Duration(node.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	output, err := executor.Invoke(invokeCtx, protocol.InvokeRequest{
		RunID:      run.ID,
		WorkflowID: workflow.ID,
		Node:       node,
		Input:      input,
		Variables:  workflow.Variables,
	})
	if err != nil {
		fail := nodeFailure(invokeCtx, err)

		e.appendEvent(ctx, run, events.NodeErrorEvent, node.ID,
			events.ErrorPayload(fail.kind, fail.hint, fail.retryable))
		otelhelper.SetError(span, err)

		return nil, fail
	}

	e.appendEvent(ctx, run, events.NodeCompleteEvent, node.ID, map[string]any{
		"output": output,
	})

	return output, nil
}

// authorizeNodeInvoke sends the invocation through the supervision gate.
func (e *Engine) authorizeNodeInvoke(ctx context.Context, run *models.Run, node *models.WorkflowNode) *failure {
	decision := e.gate.Authorize(ctx, supervision.Action{
		Type: models.ActionNodeInvoke,
		Context: map[string]any{
			"run_id":      run.ID,
			"workflow_id": run.WorkflowID,
			"node_id":     node.ID,
			"node_type":   node.Type,
		},
	})
	if decision.Allowed() {
		return nil
	}

	return &failure{
		kind:      events.ErrorKindRuntime,
		hint:      "node invocation denied: " + decision.Reason,
		retryable: false,
	}
}

// confirmNodeInvoke pauses the branch on the confirmation protocol. Only
// an allow decision lets the node proceed; deny, by user or by timeout,
// fails the node with no side effect performed.
func (e *Engine) confirmNodeInvoke(ctx context.Context, run *models.Run, workflow *models.Workflow, node *models.WorkflowNode) *failure {
	defaultDecision := models.DecisionDeny
	if configured, ok := node.Config["default_decision"].(string); ok {
		defaultDecision = models.Decision(configured)
	}

	request, err := e.confirmations.Request(ctx, run.ID, workflow.ID, node.ID, defaultDecision)
	if err != nil {
		return &failure{kind: events.ErrorKindRuntime, hint: "confirmation request failed: " + err.Error(), retryable: true}
	}

	decision, err := e.confirmations.Await(ctx, request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &failure{kind: events.ErrorKindCancelled, hint: "cancelled while awaiting confirmation", retryable: false}
		}

		return &failure{kind: events.ErrorKindRuntime, hint: "confirmation await failed: " + err.Error(), retryable: true}
	}

	if decision != models.DecisionAllow {
		return &failure{
			kind:      events.ErrorKindConfirmationDenied,
			hint:      "confirmation denied for node " + node.ID,
			retryable: false,
		}
	}

	return nil
}

// nodeFailure classifies an executor error into the run error taxonomy.
func nodeFailure(ctx context.Context, err error) *failure {
	if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return &failure{kind: events.ErrorKindTimeout, hint: "node exceeded its timeout budget", retryable: true}
	}

	if errors.Is(err, context.Canceled) {
		return &failure{kind: events.ErrorKindCancelled, hint: "node cancelled", retryable: false}
	}

	return &failure{kind: events.ErrorKindRuntime, hint: err.Error(), retryable: false}
}
