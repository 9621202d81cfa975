package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/lib/pq"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/persistence"
)

// EventRepository implements persistence.EventRepository on PostgreSQL.
//
// Sequence assignment happens inside one transaction per append. The
// (run_id, sequence) primary key arbitrates concurrent appends, even
// across processes; the loser retries with a fresh MAX, so sequences
// stay gapless.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

// Append assigns the next sequence for the event's run and persists it.
//
// Concurrent appenders for one run can compute the same MAX and collide
// on the (run_id, sequence) primary key. Every collision means another
// append committed, so retrying converges without losing any event.
func (er *EventRepository) Append(ctx context.Context, event *events.RunEvent) (int64, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, &persistence.EventError{Op: "Append", RunID: event.RunID, Err: err}
	}

	for {
		sequence, err := er.insertNext(ctx, event, payload)
		if err == nil {
			event.Sequence = sequence

			return sequence, nil
		}

		if !isUniqueViolation(err) || ctx.Err() != nil {
			return 0, &persistence.EventError{Op: "Append", RunID: event.RunID, Err: err}
		}
	}
}

func (er *EventRepository) insertNext(ctx context.Context, event *events.RunEvent, payload []byte) (int64, error) {
	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	var sequence int64

	query := `
		INSERT INTO run_events (run_id, sequence, workflow_id, event_type, payload, executor_id, created_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5, $6
		FROM run_events WHERE run_id = $1
		RETURNING sequence
	`

	err = transaction.QueryRowContext(ctx, query,
		event.RunID, event.WorkflowID, string(event.Type), payload, event.ExecutorID, event.Timestamp,
	).Scan(&sequence)
	if err != nil {
		_ = transaction.Rollback()

		return 0, err
	}

	if err := transaction.Commit(); err != nil {
		return 0, err
	}

	return sequence, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// List returns events with sequence > cursor in strict sequence order.
func (er *EventRepository) List(ctx context.Context, runID string, cursor int64, limit int) ([]*events.RunEvent, error) {
	query := `
		SELECT run_id, sequence, workflow_id, event_type, payload, executor_id, created_at
		FROM run_events
		WHERE run_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3
	`

	rows, err := er.db.QueryContext(ctx, query, runID, cursor, limit)
	if err != nil {
		return nil, &persistence.EventError{Op: "List", RunID: runID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	result := make([]*events.RunEvent, 0, limit)

	for rows.Next() {
		var (
			event      events.RunEvent
			eventType  string
			payload    []byte
			executorID sql.NullString
		)

		err := rows.Scan(&event.RunID, &event.Sequence, &event.WorkflowID, &eventType, &payload, &executorID, &event.Timestamp)
		if err != nil {
			return nil, &persistence.EventError{Op: "List", RunID: runID, Err: err}
		}

		event.Type = events.EventType(eventType)
		event.ExecutorID = executorID.String

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, &persistence.EventError{Op: "List", RunID: runID, Err: err}
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, &persistence.EventError{Op: "List", RunID: runID, Err: err}
	}

	return result, nil
}

// LastSequence returns the highest sequence appended for the run.
func (er *EventRepository) LastSequence(ctx context.Context, runID string) (int64, error) {
	var sequence int64

	err := er.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM run_events WHERE run_id = $1", runID,
	).Scan(&sequence)
	if err != nil {
		return 0, &persistence.EventError{Op: "LastSequence", RunID: runID, Err: err}
	}

	return sequence, nil
}
