package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

const uniqueViolation = "23505"

// RunRepository implements persistence.RunRepository on PostgreSQL.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create persists a new run.
func (rr *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, workflow_id, project_id, status, idempotency_key, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := rr.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.ProjectID, string(run.Status),
		nullString(run.IdempotencyKey), run.CreatedAt, run.FinishedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewRunError("Create", run.ID, persistence.ErrDuplicateRun)
		}

		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

// GetByID returns the run or ErrRunNotFound.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, workflow_id, project_id, status, idempotency_key, created_at, finished_at
		FROM runs WHERE id = $1
	`

	return rr.scanRun(rr.db.QueryRowContext(ctx, query, id), "GetByID", id)
}

// GetByIdempotencyKey returns the run previously created for (workflowID, key).
func (rr *RunRepository) GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.Run, error) {
	query := `
		SELECT id, workflow_id, project_id, status, idempotency_key, created_at, finished_at
		FROM runs WHERE workflow_id = $1 AND idempotency_key = $2
	`

	return rr.scanRun(rr.db.QueryRowContext(ctx, query, workflowID, key), "GetByIdempotencyKey", "")
}

// CompareAndSwapStatus atomically moves the run from expected to next.
// The UPDATE's status predicate is the swap; RowsAffected decides the winner.
func (rr *RunRepository) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.RunStatus, finishedAt *time.Time) (*models.Run, error) {
	query := `
		UPDATE runs SET status = $1, finished_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := rr.db.ExecContext(ctx, query, string(next), finishedAt, id, string(expected))
	if err != nil {
		return nil, persistence.NewRunError("CompareAndSwapStatus", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, persistence.NewRunError("CompareAndSwapStatus", id, err)
	}

	run, getErr := rr.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	if affected == 0 {
		return run, persistence.NewRunError("CompareAndSwapStatus", id, persistence.ErrTransitionConflict)
	}

	return run, nil
}

func (rr *RunRepository) scanRun(row *sql.Row, op, id string) (*models.Run, error) {
	var (
		run            models.Run
		status         string
		idempotencyKey sql.NullString
		finishedAt     sql.NullTime
	)

	err := row.Scan(&run.ID, &run.WorkflowID, &run.ProjectID, &status, &idempotencyKey, &run.CreatedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError(op, id, err)
	}

	run.Status = models.RunStatus(status)
	run.IdempotencyKey = idempotencyKey.String

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
