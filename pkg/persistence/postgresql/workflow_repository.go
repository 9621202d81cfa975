package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

// WorkflowRepository implements the read-only graph store collaborator on
// PostgreSQL. Nodes and edges are stored as JSONB documents; the
// orchestration core never edits graphs in place.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByID returns the workflow or ErrWorkflowNotFound.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, variables, metadata, owner, created_at, updated_at
		FROM workflows WHERE id = $1
	`

	var (
		workflow  models.Workflow
		nodes     []byte
		edges     []byte
		variables []byte
		metadata  []byte
		owner     sql.NullString
	)

	err := wr.db.QueryRowContext(ctx, query, id).Scan(
		&workflow.ID, &workflow.Name, &workflow.Description,
		&nodes, &edges, &variables, &metadata, &owner,
		&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, err
	}

	workflow.Owner = owner.String

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(edges, &workflow.Edges); err != nil {
		return nil, err
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &workflow.Variables); err != nil {
			return nil, err
		}
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &workflow.Metadata); err != nil {
			return nil, err
		}
	}

	return &workflow, nil
}

// Save upserts the workflow document.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return err
	}

	edges, err := json.Marshal(workflow.Edges)
	if err != nil {
		return err
	}

	variables, err := json.Marshal(workflow.Variables)
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return err
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	workflow.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO workflows (id, name, description, nodes, edges, variables, metadata, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID, workflow.Name, workflow.Description,
		nodes, edges, variables, metadata,
		nullString(workflow.Owner), workflow.CreatedAt, workflow.UpdatedAt)

	return err
}
