// Package models defines the core domain models for run orchestration.
package models

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"   // Accepted, execution not started
	RunStatusRunning   RunStatus = "running"   // Engine is dispatching nodes
	RunStatusCompleted RunStatus = "completed" // Terminal, all nodes finished
	RunStatusFailed    RunStatus = "failed"    // Terminal, validation or node failure
	RunStatusCancelled RunStatus = "cancelled" // Terminal, stopped at a node boundary
)

// IsTerminal reports whether the status is absorbing. Terminal runs are
// retained for audit and replay, never deleted.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusCreated, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}

	return false
}

// Run represents one execution attempt of a workflow graph.
//
// Runs are created on explicit request and mutated only through
// compare-and-swap status transitions owned by the run lifecycle manager.
type Run struct {
	ID             string     `json:"id"              validate:"required"`
	WorkflowID     string     `json:"workflow_id"     validate:"required"`
	ProjectID      string     `json:"project_id"      validate:"required"`
	Status         RunStatus  `json:"status"          validate:"required"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
