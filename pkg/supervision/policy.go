package supervision

import (
	"context"
	"fmt"

	"github.com/runweave/runweave/pkg/models"
)

// Policy decides whether a tagged action may proceed. Evaluate returns
// the verdict plus a reason suitable for surfacing to the caller; an
// error means the policy data itself was unreachable and the gate will
// deny.
type Policy interface {
	Evaluate(ctx context.Context, action Action) (models.Decision, string, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, action Action) (models.Decision, string, error)

func (f PolicyFunc) Evaluate(ctx context.Context, action Action) (models.Decision, string, error) {
	return f(ctx, action)
}

// AllowlistPolicy permits a fixed set of action types and denies
// everything else. Unknown action types are denied by construction.
type AllowlistPolicy struct {
	allowed map[models.ActionType]bool
}

// NewAllowlistPolicy creates a policy permitting exactly the given action types.
func NewAllowlistPolicy(actionTypes ...models.ActionType) *AllowlistPolicy {
	allowed := make(map[models.ActionType]bool, len(actionTypes))
	for _, actionType := range actionTypes {
		allowed[actionType] = true
	}

	return &AllowlistPolicy{allowed: allowed}
}

func (p *AllowlistPolicy) Evaluate(_ context.Context, action Action) (models.Decision, string, error) {
	if p.allowed[action.Type] {
		return models.DecisionAllow, fmt.Sprintf("action type %s is allowlisted", action.Type), nil
	}

	return models.DecisionDeny, fmt.Sprintf("action type %s is not allowlisted", action.Type), nil
}

// DefaultPolicy permits the full closed set of gated actions. Deployments
// that need tighter control swap in their own Policy.
func DefaultPolicy() Policy {
	return NewAllowlistPolicy(
		models.ActionRunCreate,
		models.ActionGraphCommit,
		models.ActionExecutionStart,
		models.ActionNodeInvoke,
	)
}
