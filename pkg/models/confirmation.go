package models

import "time"

// Decision is the closed verdict set shared by the supervision gate and
// the confirmation protocol.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionAllow || d == DecisionDeny
}

// Resolution sources for confirmation requests.
const (
	ResolutionSourceUser    = "user"
	ResolutionSourceTimeout = "timeout"
)

// ConfirmationRequest tracks the pause/resume state around one
// side-effecting node invocation. Exactly one resolution is accepted;
// resolving again returns the original resolution unchanged.
type ConfirmationRequest struct {
	ID               string     `json:"id"               validate:"required"`
	RunID            string     `json:"run_id"           validate:"required"`
	WorkflowID       string     `json:"workflow_id"      validate:"required"`
	NodeID           string     `json:"node_id"          validate:"required"`
	DefaultDecision  Decision   `json:"default_decision" validate:"required"`
	ResolvedDecision *Decision  `json:"resolved_decision,omitempty"`
	Source           string     `json:"source,omitempty"` // user or timeout, set on resolution
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the request has been settled.
func (c *ConfirmationRequest) Resolved() bool {
	return c.ResolvedDecision != nil
}
