// Package supervision implements the fail-closed policy checkpoint that
// must approve every side-effecting action before it proceeds.
package supervision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/protocol"
)

// Action is one tagged request flowing through the gate. Context carries
// the facts the policy may inspect; it is digested, never stored raw.
type Action struct {
	Type    models.ActionType
	Context map[string]any
}

// Decision is the gate's verdict for one action.
type Decision struct {
	Verdict models.Decision
	Reason  string
}

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool {
	return d.Verdict == models.DecisionAllow
}

// Gate evaluates actions against a policy and records every verdict.
//
// The gate has no open failure mode: when the policy or the audit sink is
// unreachable, the verdict is deny. Callers must not have produced any
// persisted side effect before an allow comes back; anything staged for a
// denied action is rolled back before the deny is returned.
type Gate struct {
	policy Policy
	audit  protocol.AuditSink
	logger *slog.Logger
}

// NewGate creates a new supervision gate.
func NewGate(policy Policy, audit protocol.AuditSink, logger *slog.Logger) *Gate {
	return &Gate{
		policy: policy,
		audit:  audit,
		logger: logger,
	}
}

// Authorize evaluates the action and returns the verdict. Both allow and
// deny verdicts are audited with a context digest; a failed audit write
// downgrades an allow to deny.
func (g *Gate) Authorize(ctx context.Context, action Action) Decision {
	verdict, reason, err := g.policy.Evaluate(ctx, action)
	if err != nil {
		verdict = models.DecisionDeny
		reason = "policy unavailable: " + err.Error()
	}

	decision := models.SupervisionDecision{
		ActionType:    action.Type,
		ContextDigest: digest(action.Context),
		Verdict:       verdict,
		Reason:        reason,
		DecidedAt:     time.Now().UTC(),
	}

	if auditErr := g.audit.Record(ctx, decision); auditErr != nil {
		g.logger.ErrorContext(ctx, "Audit sink unreachable, denying action",
			"action_type", action.Type, "error", auditErr)

		denied := decision
		denied.Verdict = models.DecisionDeny
		denied.Reason = "audit sink unavailable: " + auditErr.Error()

		// Best effort; the sink already failed once.
		_ = g.audit.Record(ctx, denied)

		return Decision{Verdict: models.DecisionDeny, Reason: denied.Reason}
	}

	g.logger.DebugContext(ctx, "Supervision decision recorded",
		"action_type", action.Type, "verdict", verdict, "reason", reason)

	return Decision{Verdict: verdict, Reason: reason}
}

// digest produces a stable sha256 over the action context. Map keys are
// sorted by the JSON encoder, so equal contexts always digest equally.
func digest(context map[string]any) string {
	data, err := json.Marshal(context)
	if err != nil {
		data = []byte("unserializable-context")
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
