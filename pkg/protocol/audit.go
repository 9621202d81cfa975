package protocol

import (
	"context"

	"github.com/runweave/runweave/pkg/models"
)

// AuditSink accepts supervision decision records. When the sink is
// unreachable the gate must deny, never allow; implementations therefore
// surface write failures instead of swallowing them.
type AuditSink interface {
	Record(ctx context.Context, decision models.SupervisionDecision) error
}
