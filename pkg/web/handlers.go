package web

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/runweave/runweave/pkg/confirmation"
	"github.com/runweave/runweave/pkg/engine"
	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/protocol"
	"github.com/runweave/runweave/pkg/runs"
	"github.com/runweave/runweave/pkg/supervision"
	"github.com/runweave/runweave/pkg/validation"
)

// APIHandlers carries the collaborators behind the HTTP surface.
type APIHandlers struct {
	runs          *runs.Manager
	engine        *engine.Engine
	log           *eventlog.Log
	confirmations *confirmation.Manager
	gate          *supervision.Gate
	workflows     persistence.WorkflowRepository
	persistence   persistence.Persistence
	tools         protocol.ToolRegistry
	validator     *validator.Validate
	logger        *slog.Logger
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(
	runManager *runs.Manager,
	eng *engine.Engine,
	log *eventlog.Log,
	confirmations *confirmation.Manager,
	gate *supervision.Gate,
	store persistence.Persistence,
	tools protocol.ToolRegistry,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		runs:          runManager,
		engine:        eng,
		log:           log,
		confirmations: confirmations,
		gate:          gate,
		workflows:     store.WorkflowRepository(),
		persistence:   store,
		tools:         tools,
		validator:     validate,
		logger:        logger,
	}
}

// CreateRun accepts a run for a workflow. Repeating the request with the
// same idempotency key returns the original run.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	var req CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.workflows.GetByID(c.Context(), req.WorkflowID); err != nil {
		return handleServiceError(c, err)
	}

	decision := h.gate.Authorize(c.Context(), supervision.Action{
		Type: models.ActionRunCreate,
		Context: map[string]any{
			"workflow_id": req.WorkflowID,
			"project_id":  req.ProjectID,
		},
	})
	if !decision.Allowed() {
		return forbidden(c, "run creation denied: "+decision.Reason)
	}

	run, err := h.runs.Create(c.Context(), req.WorkflowID, req.ProjectID, req.IdempotencyKey)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformRunResponse(run))
}

// GetRun returns one run.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runs.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

// StartExecution begins executing a created run and streams its event
// log as NDJSON until the terminal event. Client disconnect cancels the
// run at the next node boundary.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req StartExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.runs.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if run.Status != models.RunStatusCreated {
		return conflict(c, "run "+id+" is "+string(run.Status)+", not startable")
	}

	if req.WorkflowID != "" && req.WorkflowID != run.WorkflowID {
		return conflict(c, "run "+id+" belongs to workflow "+run.WorkflowID)
	}

	ctx := c.Context()
	stream := h.log.NewStream(run.ID, 0)

	go func() {
		if err := h.engine.Execute(ctx, run.ID, run.WorkflowID, req.Input); err != nil {
			if !errors.Is(err, engine.ErrRunNotStartable) {
				h.logger.ErrorContext(ctx, "Run execution ended with error",
					"run_id", run.ID, "error", err)
			}
		}
	}()

	c.Set(fiber.HeaderContentType, "application/x-ndjson")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer stream.Close()

		encoder := json.NewEncoder(w)

		for {
			event, err := stream.Next(ctx)
			if err != nil {
				return
			}

			if err := encoder.Encode(event); err != nil {
				return
			}

			if err := w.Flush(); err != nil {
				return
			}

			if event.Type.IsTerminal() {
				return
			}
		}
	})
}

// ReplayEvents returns one page of the run's event log after the cursor.
func (h *APIHandlers) ReplayEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	if _, err := h.runs.Get(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	var cursor int64

	if cursorStr := c.Query("cursor"); cursorStr != "" {
		parsed, err := strconv.ParseInt(cursorStr, 10, 64)
		if err != nil || parsed < 0 {
			return badRequest(c, "cursor must be a non-negative integer")
		}

		cursor = parsed
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}

		limit = parsed
	}

	page, err := h.log.Replay(c.Context(), id, cursor, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(page)
}

// ResolveConfirmation settles a pending confirmation request. Resolving
// twice returns the original resolution with no second effect.
func (h *APIHandlers) ResolveConfirmation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Confirmation ID is required")
	}

	var req ResolveConfirmationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resolved, err := h.confirmations.Resolve(c.Context(), id, models.Decision(req.Decision))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformConfirmationResponse(resolved))
}

// GetConfirmation returns one confirmation request.
func (h *APIHandlers) GetConfirmation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Confirmation ID is required")
	}

	request, err := h.confirmations.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformConfirmationResponse(request))
}

// SaveWorkflow validates and stores a workflow graph. A graph that fails
// validation is rejected whole; nothing is persisted.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
		UpdatedAt:   time.Now().UTC(),
	}

	if existing, err := h.workflows.GetByID(c.Context(), req.ID); err == nil {
		workflow.CreatedAt = existing.CreatedAt
	} else {
		workflow.CreatedAt = workflow.UpdatedAt
	}

	decision := h.gate.Authorize(c.Context(), supervision.Action{
		Type: models.ActionGraphCommit,
		Context: map[string]any{
			"workflow_id": workflow.ID,
			"owner":       workflow.Owner,
		},
	})
	if !decision.Allowed() {
		return forbidden(c, "graph commit denied: "+decision.Reason)
	}

	if err := validation.Validate(c.Context(), workflow, h.tools); err != nil {
		var validationErrs validation.Errors
		if errors.As(err, &validationErrs) {
			return unprocessable(c, validationErrs)
		}

		return internalError(c, err)
	}

	if err := h.workflows.Save(c.Context(), workflow); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// GetWorkflow returns one stored workflow graph.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflows.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// HealthCheck reports storage reachability.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	storageCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		storageCheck = err.Error()
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"storage": storageCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
