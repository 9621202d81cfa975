// Package persistence provides the data storage abstraction layer for runs,
// run events, confirmation requests and read-only workflow graphs.
package persistence

import (
	"context"
	"time"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
)

// Persistence aggregates the repositories backing the orchestration core.
type Persistence interface {
	RunRepository() RunRepository
	EventRepository() EventRepository
	ConfirmationRepository() ConfirmationRepository
	WorkflowRepository() WorkflowRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// RunRepository owns Run records. Runs are never deleted; terminal runs
// are retained for audit and replay.
type RunRepository interface {
	// Create persists a new run. Returns ErrDuplicateRun when the ID is taken.
	Create(ctx context.Context, run *models.Run) error

	// GetByID returns the run or ErrRunNotFound.
	GetByID(ctx context.Context, id string) (*models.Run, error)

	// GetByIdempotencyKey returns the run previously created for
	// (workflowID, key), or ErrRunNotFound when none exists.
	GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.Run, error)

	// CompareAndSwapStatus atomically moves the run from expected to next.
	// Exactly one caller wins a given transition; losers receive
	// ErrTransitionConflict and the currently stored run.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next models.RunStatus, finishedAt *time.Time) (*models.Run, error)
}

// EventRepository is the append-only store behind the event log. Sequence
// numbers are assigned here, atomically per run; appends for different
// runs never contend with each other.
type EventRepository interface {
	// Append assigns the next sequence for the event's run and persists
	// the event. The assigned sequence is returned and set on the event.
	Append(ctx context.Context, event *events.RunEvent) (int64, error)

	// List returns events with sequence > cursor in strict sequence order,
	// at most limit of them.
	List(ctx context.Context, runID string, cursor int64, limit int) ([]*events.RunEvent, error)

	// LastSequence returns the highest sequence appended for the run,
	// zero when the run has no events.
	LastSequence(ctx context.Context, runID string) (int64, error)
}

// ConfirmationRepository stores confirmation requests. Resolution is
// first-writer-wins: once resolved, the stored resolution is immutable.
type ConfirmationRepository interface {
	Create(ctx context.Context, request *models.ConfirmationRequest) error

	// GetByID returns the request or ErrConfirmationNotFound.
	GetByID(ctx context.Context, id string) (*models.ConfirmationRequest, error)

	// Resolve records the decision unless the request is already resolved,
	// in which case the stored request is returned unchanged. The boolean
	// reports whether this call performed the resolution.
	Resolve(ctx context.Context, id string, decision models.Decision, source string) (*models.ConfirmationRequest, bool, error)
}

// WorkflowRepository is the graph store collaborator. The orchestration
// core reads graphs; Save exists for seeding and for the editing surface
// that lives outside this core.
type WorkflowRepository interface {
	// GetByID returns the workflow or ErrWorkflowNotFound.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	Save(ctx context.Context, workflow *models.Workflow) error
}
