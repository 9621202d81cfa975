package models

import "time"

// ActionType tags the closed set of gated actions. Every side-effecting
// step flows through the supervision gate under one of these tags.
type ActionType string

const (
	ActionRunCreate      ActionType = "run_create"
	ActionGraphCommit    ActionType = "graph_commit"
	ActionExecutionStart ActionType = "execution_start"
	ActionNodeInvoke     ActionType = "node_invoke"
)

// SupervisionDecision is the audit record of one gate verdict. It is not
// part of any domain state machine; the gate emits one per Authorize call,
// allow and deny alike.
type SupervisionDecision struct {
	ActionType    ActionType `json:"action_type"`
	ContextDigest string     `json:"context_digest"` // sha256 over the action context, never raw payloads
	Verdict       Decision   `json:"verdict"`
	Reason        string     `json:"reason"`
	DecidedAt     time.Time  `json:"decided_at"`
}
