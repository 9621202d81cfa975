// Package engine dispatches workflow graphs for runs: topological node
// scheduling with concurrent branches, conditional edges, supervision and
// confirmation of side-effecting nodes, and exactly one terminal event
// per run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/runweave/runweave/pkg/confirmation"
	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/otelhelper"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/registry"
	"github.com/runweave/runweave/pkg/runs"
	"github.com/runweave/runweave/pkg/supervision"
	"github.com/runweave/runweave/pkg/validation"
)

// ErrRunNotStartable indicates a start request for a run that is not in
// created status. Repeating start_execution never re-runs nodes.
var ErrRunNotStartable = errors.New("run is not in a startable status")

// ErrExecutionDenied indicates the supervision gate refused to let the
// run start. The run stays in created status and no event is written.
var ErrExecutionDenied = errors.New("execution start denied")

// ErrWorkflowMismatch indicates a start request naming a workflow the run
// does not belong to.
var ErrWorkflowMismatch = errors.New("run does not belong to workflow")

// Engine executes workflow graphs for runs.
type Engine struct {
	runs          *runs.Manager
	workflows     persistence.WorkflowRepository
	log           *eventlog.Log
	confirmations *confirmation.Manager
	gate          *supervision.Gate
	registry      *registry.Registry
	tools         protocol.ToolRegistry
	tracer        trace.Tracer
	logger        *slog.Logger
}

// NewEngine creates a new execution engine. tracer may be nil when
// tracing is not configured.
func NewEngine(
	runManager *runs.Manager,
	workflows persistence.WorkflowRepository,
	log *eventlog.Log,
	confirmations *confirmation.Manager,
	gate *supervision.Gate,
	reg *registry.Registry,
	tools protocol.ToolRegistry,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Engine {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("runweave")
	}

	return &Engine{
		runs:          runManager,
		workflows:     workflows,
		log:           log,
		confirmations: confirmations,
		gate:          gate,
		registry:      reg,
		tools:         tools,
		tracer:        tracer,
		logger:        logger,
	}
}

// Execute drives one run from created to a terminal status and returns
// when the terminal transition has settled. It performs no execution work
// before the run is atomically moved to running, so a repeated call (or a
// call for an already-finished run) fails with ErrRunNotStartable and
// touches nothing.
//
// Cancellation of ctx takes effect at node boundaries: in-flight nodes
// finish, nothing new is dispatched, and the run ends cancelled.
func (e *Engine) Execute(ctx context.Context, runID, workflowID string, input map[string]any) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	logger := e.logger.With("module", "engine", "run_id", runID)

	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if run.WorkflowID != workflowID {
		return fmt.Errorf("%w: run %s belongs to workflow %s", ErrWorkflowMismatch, runID, run.WorkflowID)
	}

	if run.Status != models.RunStatusCreated {
		return fmt.Errorf("%w: run %s is %s", ErrRunNotStartable, runID, run.Status)
	}

	workflow, err := e.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	decision := e.gate.Authorize(ctx, supervision.Action{
		Type: models.ActionExecutionStart,
		Context: map[string]any{
			"run_id":      run.ID,
			"workflow_id": run.WorkflowID,
			"project_id":  run.ProjectID,
		},
	})
	if !decision.Allowed() {
		// The run stays created and the event log stays empty. The only
		// trace of a denied start is the audit sink's decision record.
		return fmt.Errorf("%w: %s", ErrExecutionDenied, decision.Reason)
	}

	// The stored graph is re-checked at start time: the tool registry
	// may have moved since save.
	if err := validation.Validate(ctx, workflow, e.tools); err != nil {
		var validationErrs validation.Errors
		hint := err.Error()

		if errors.As(err, &validationErrs) && validationErrs.First() != nil {
			hint = validationErrs.First().Error()
		}

		failErr := e.failBeforeStart(ctx, run, events.ErrorPayload(
			events.ErrorKindValidation, hint, false))
		if failErr != nil {
			return failErr
		}

		return err
	}

	_, err = e.runs.Transition(ctx, run.ID, models.RunStatusCreated, models.RunStatusRunning, &events.RunEvent{
		Type:       events.WorkflowStartEvent,
		WorkflowID: run.WorkflowID,
		Payload:    map[string]any{"input": input},
	})
	if err != nil {
		// Lost the start race; the winner does the work.
		if persistence.IsTransitionConflict(err) {
			return fmt.Errorf("%w: %s", ErrRunNotStartable, err)
		}

		otelhelper.SetError(span, err)

		return err
	}

	logger.InfoContext(ctx, "Run execution started", "workflow_id", run.WorkflowID)

	dispatcher := newDispatcher(e, run, workflow, input, logger)

	outcome := dispatcher.dispatch(ctx)

	return e.finish(ctx, span, run, outcome)
}

// failBeforeStart terminates a run that never entered running. The
// workflow_error marker and the failed status settle together.
func (e *Engine) failBeforeStart(ctx context.Context, run *models.Run, payload map[string]any) error {
	_, err := e.runs.Transition(ctx, run.ID, models.RunStatusCreated, models.RunStatusFailed, &events.RunEvent{
		Type:       events.WorkflowErrorEvent,
		WorkflowID: run.WorkflowID,
		Payload:    payload,
	})
	if err != nil && !persistence.IsTransitionConflict(err) {
		return err
	}

	return nil
}

// finish records the dispatcher outcome as the run's single terminal
// transition and event.
func (e *Engine) finish(ctx context.Context, span trace.Span, run *models.Run, outcome *dispatchOutcome) error {
	// Terminal bookkeeping must land even when the caller's context is
	// already cancelled.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
	}

	marker := &events.RunEvent{
		Type:       events.WorkflowCompleteEvent,
		WorkflowID: run.WorkflowID,
	}
	status := models.RunStatusCompleted

	switch {
	case outcome.cancelled:
		marker.Type = events.WorkflowErrorEvent
		marker.Payload = events.ErrorPayload(events.ErrorKindCancelled, "run cancelled at a node boundary", false)
		status = models.RunStatusCancelled
	case outcome.failure != nil:
		marker.Type = events.WorkflowErrorEvent
		marker.Payload = events.ErrorPayload(outcome.failure.kind, outcome.failure.hint, outcome.failure.retryable)
		status = models.RunStatusFailed
	default:
		marker.Payload = map[string]any{"output": outcome.output}
	}

	_, err := e.runs.Transition(ctx, run.ID, models.RunStatusRunning, status, marker)
	if err != nil {
		if persistence.IsTransitionConflict(err) {
			// Someone else already terminated the run; their marker stands.
			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	e.logger.InfoContext(ctx, "Run execution finished",
		"run_id", run.ID, "status", status)

	if status == models.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, marker.Payload["hint"])
	}

	return nil
}
