// Package runs owns Run records and their state machine. All status
// changes flow through compare-and-swap transitions; there is no other
// write path.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

// ErrInvalidTransition indicates a transition request that the state
// machine can never accept, such as moving out of a terminal status.
var ErrInvalidTransition = errors.New("invalid run status transition")

// Manager is the run lifecycle manager.
type Manager struct {
	repo   persistence.RunRepository
	log    *eventlog.Log
	logger *slog.Logger
}

// NewManager creates a new run lifecycle manager.
func NewManager(repo persistence.RunRepository, log *eventlog.Log, logger *slog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		log:    log,
		logger: logger,
	}
}

// Create persists a new run in created status. When idempotencyKey is
// non-empty and a run already exists for (workflowID, idempotencyKey),
// the existing run is returned unchanged and nothing is written.
func (m *Manager) Create(ctx context.Context, workflowID, projectID, idempotencyKey string) (*models.Run, error) {
	if idempotencyKey != "" {
		existing, err := m.repo.GetByIdempotencyKey(ctx, workflowID, idempotencyKey)
		if err == nil {
			return existing, nil
		}

		if !persistence.IsRunNotFound(err) {
			return nil, err
		}
	}

	run := &models.Run{
		ID:             uuid.New().String(),
		WorkflowID:     workflowID,
		ProjectID:      projectID,
		Status:         models.RunStatusCreated,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	err := m.repo.Create(ctx, run)
	if err != nil {
		// A concurrent create with the same key can beat us to the
		// unique index; the winner's run is the answer either way.
		if idempotencyKey != "" && persistence.IsDuplicateRun(err) {
			return m.repo.GetByIdempotencyKey(ctx, workflowID, idempotencyKey)
		}

		return nil, err
	}

	m.logger.InfoContext(ctx, "Run created",
		"run_id", run.ID, "workflow_id", workflowID, "project_id", projectID)

	return run, nil
}

// Get returns the run or ErrRunNotFound.
func (m *Manager) Get(ctx context.Context, runID string) (*models.Run, error) {
	return m.repo.GetByID(ctx, runID)
}

// Transition atomically moves the run from expected to next. Exactly one
// caller wins a given transition; losers receive ErrTransitionConflict
// and must not duplicate the action the transition guards.
//
// Terminal statuses are absorbing: requesting a transition out of one
// fails with ErrInvalidTransition before touching the store. Terminal
// transitions set FinishedAt.
//
// A non-nil marker is appended to the event log after the swap succeeds,
// which is how the terminal event and the terminal status settle
// together: only the CAS winner appends.
func (m *Manager) Transition(ctx context.Context, runID string, expected, next models.RunStatus, marker *events.RunEvent) (*models.Run, error) {
	if !expected.Valid() || !next.Valid() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}

	if expected.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, expected)
	}

	var finishedAt *time.Time

	if next.IsTerminal() {
		now := time.Now().UTC()
		finishedAt = &now
	}

	run, err := m.repo.CompareAndSwapStatus(ctx, runID, expected, next, finishedAt)
	if err != nil {
		return run, err
	}

	m.logger.InfoContext(ctx, "Run status transitioned",
		"run_id", runID, "from", expected, "to", next)

	if marker != nil {
		marker.RunID = runID

		if _, err := m.log.Append(ctx, marker); err != nil {
			return run, err
		}
	}

	return run, nil
}
