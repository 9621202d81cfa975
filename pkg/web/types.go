// Package web provides the HTTP surface of the orchestration core: run
// creation, execution streaming, event replay and confirmation
// resolution.
package web

import (
	"time"

	"github.com/runweave/runweave/pkg/models"
)

// CreateRunRequest is the request body for creating a run.
type CreateRunRequest struct {
	WorkflowID     string `json:"workflow_id"     validate:"required"`
	ProjectID      string `json:"project_id"      validate:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RunResponse is the API shape of a run.
type RunResponse struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	ProjectID      string     `json:"project_id"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// TransformRunResponse maps a run onto its API shape.
func TransformRunResponse(run *models.Run) RunResponse {
	return RunResponse{
		ID:             run.ID,
		WorkflowID:     run.WorkflowID,
		ProjectID:      run.ProjectID,
		Status:         string(run.Status),
		IdempotencyKey: run.IdempotencyKey,
		CreatedAt:      run.CreatedAt,
		FinishedAt:     run.FinishedAt,
	}
}

// StartExecutionRequest is the request body for starting a run. When
// WorkflowID is set it must match the workflow the run was created for.
type StartExecutionRequest struct {
	WorkflowID string         `json:"workflow_id,omitempty"`
	Input      map[string]any `json:"input"`
}

// ResolveConfirmationRequest is the request body for resolving a pending
// confirmation.
type ResolveConfirmationRequest struct {
	Decision string `json:"decision" validate:"required,oneof=allow deny"`
}

// ConfirmationResponse is the API shape of a confirmation request.
type ConfirmationResponse struct {
	ID               string     `json:"id"`
	RunID            string     `json:"run_id"`
	WorkflowID       string     `json:"workflow_id"`
	NodeID           string     `json:"node_id"`
	DefaultDecision  string     `json:"default_decision"`
	ResolvedDecision *string    `json:"resolved_decision,omitempty"`
	Source           string     `json:"source,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// TransformConfirmationResponse maps a confirmation request onto its API
// shape.
func TransformConfirmationResponse(request *models.ConfirmationRequest) ConfirmationResponse {
	response := ConfirmationResponse{
		ID:              request.ID,
		RunID:           request.RunID,
		WorkflowID:      request.WorkflowID,
		NodeID:          request.NodeID,
		DefaultDecision: string(request.DefaultDecision),
		Source:          request.Source,
		CreatedAt:       request.CreatedAt,
		ResolvedAt:      request.ResolvedAt,
	}

	if request.ResolvedDecision != nil {
		decision := string(*request.ResolvedDecision)
		response.ResolvedDecision = &decision
	}

	return response
}

// SaveWorkflowRequest is the request body for saving a workflow graph.
// Saving always runs the full graph validation.
type SaveWorkflowRequest struct {
	ID          string                 `json:"id"          validate:"required"`
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Edges       []*models.Edge         `json:"edges"`
	Variables   map[string]any         `json:"variables,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Owner       string                 `json:"owner"       validate:"required"`
}
