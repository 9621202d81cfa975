package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

// ConfirmationRepository implements persistence.ConfirmationRepository on
// PostgreSQL. Resolution is first-writer-wins via a predicate on
// resolved_decision IS NULL.
type ConfirmationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConfirmationRepository creates a new confirmation repository.
func NewConfirmationRepository(db *sql.DB, logger *slog.Logger) *ConfirmationRepository {
	return &ConfirmationRepository{db: db, logger: logger}
}

func (cr *ConfirmationRepository) Create(ctx context.Context, request *models.ConfirmationRequest) error {
	query := `
		INSERT INTO confirmation_requests (id, run_id, workflow_id, node_id, default_decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := cr.db.ExecContext(ctx, query,
		request.ID, request.RunID, request.WorkflowID, request.NodeID, string(request.DefaultDecision), request.CreatedAt)
	if err != nil {
		return &persistence.ConfirmationError{Op: "Create", ConfirmID: request.ID, Err: err}
	}

	return nil
}

func (cr *ConfirmationRepository) GetByID(ctx context.Context, id string) (*models.ConfirmationRequest, error) {
	query := `
		SELECT id, run_id, workflow_id, node_id, default_decision, resolved_decision, source, created_at, resolved_at
		FROM confirmation_requests WHERE id = $1
	`

	return cr.scan(cr.db.QueryRowContext(ctx, query, id), "GetByID", id)
}

// Resolve records the decision unless the request is already resolved.
func (cr *ConfirmationRepository) Resolve(ctx context.Context, id string, decision models.Decision, source string) (*models.ConfirmationRequest, bool, error) {
	query := `
		UPDATE confirmation_requests
		SET resolved_decision = $1, source = $2, resolved_at = $3
		WHERE id = $4 AND resolved_decision IS NULL
	`

	result, err := cr.db.ExecContext(ctx, query, string(decision), source, time.Now().UTC(), id)
	if err != nil {
		return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: err}
	}

	request, getErr := cr.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}

	return request, affected > 0, nil
}

func (cr *ConfirmationRepository) scan(row *sql.Row, op, id string) (*models.ConfirmationRequest, error) {
	var (
		request          models.ConfirmationRequest
		defaultDecision  string
		resolvedDecision sql.NullString
		source           sql.NullString
		resolvedAt       sql.NullTime
	)

	err := row.Scan(&request.ID, &request.RunID, &request.WorkflowID, &request.NodeID, &defaultDecision,
		&resolvedDecision, &source, &request.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ConfirmationError{Op: op, ConfirmID: id, Err: persistence.ErrConfirmationNotFound}
		}

		return nil, &persistence.ConfirmationError{Op: op, ConfirmID: id, Err: err}
	}

	request.DefaultDecision = models.Decision(defaultDecision)
	request.Source = source.String

	if resolvedDecision.Valid {
		decision := models.Decision(resolvedDecision.String)
		request.ResolvedDecision = &decision
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		request.ResolvedAt = &t
	}

	return &request, nil
}
