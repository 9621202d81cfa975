package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"
	"time"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

const dirPerm = 0o755

// RunRepository stores runs as JSON documents under <root>/runs. createMu
// stands in for the (workflow_id, idempotency_key) unique index of the
// postgresql backend.
type RunRepository struct {
	root     string
	locks    *runLocks
	createMu sync.Mutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string, locks *runLocks) *RunRepository {
	return &RunRepository{root: root, locks: locks}
}

func (rr *RunRepository) dir() string {
	return path.Join(rr.root, "runs")
}

func (rr *RunRepository) filePath(id string) string {
	return path.Join(rr.dir(), id+".json")
}

// Create persists a new run. A run with the same ID, or the same
// non-empty (workflow, idempotency key) pair, yields ErrDuplicateRun.
func (rr *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if err := os.MkdirAll(rr.dir(), dirPerm); err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	rr.createMu.Lock()
	defer rr.createMu.Unlock()

	if _, err := os.Stat(rr.filePath(run.ID)); err == nil {
		return persistence.NewRunError("Create", run.ID, persistence.ErrDuplicateRun)
	}

	if run.IdempotencyKey != "" {
		_, err := rr.GetByIdempotencyKey(ctx, run.WorkflowID, run.IdempotencyKey)
		if err == nil {
			return persistence.NewRunError("Create", run.ID, persistence.ErrDuplicateRun)
		}

		if !persistence.IsRunNotFound(err) {
			return err
		}
	}

	return rr.write(run, "Create")
}

// GetByID returns the run or ErrRunNotFound.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	return rr.read(id, "GetByID")
}

// GetByIdempotencyKey scans stored runs for a matching (workflow, key) pair.
func (rr *RunRepository) GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.Run, error) {
	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetByIdempotencyKey", "", persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByIdempotencyKey", "", err)
	}

	for _, file := range jsonFiles {
		run, err := rr.read(file[:len(file)-5], "GetByIdempotencyKey")
		if err != nil {
			return nil, err
		}

		if run.WorkflowID == workflowID && run.IdempotencyKey == key {
			return run, nil
		}
	}

	return nil, persistence.NewRunError("GetByIdempotencyKey", "", persistence.ErrRunNotFound)
}

// CompareAndSwapStatus atomically moves the run from expected to next.
func (rr *RunRepository) CompareAndSwapStatus(ctx context.Context, id string, expected, next models.RunStatus, finishedAt *time.Time) (*models.Run, error) {
	lock := rr.locks.forRun(id)
	lock.Lock()
	defer lock.Unlock()

	run, err := rr.read(id, "CompareAndSwapStatus")
	if err != nil {
		return nil, err
	}

	if run.Status != expected {
		return run, persistence.NewRunError("CompareAndSwapStatus", id, persistence.ErrTransitionConflict)
	}

	run.Status = next
	run.FinishedAt = finishedAt

	if err := rr.write(run, "CompareAndSwapStatus"); err != nil {
		return nil, err
	}

	return run, nil
}

func (rr *RunRepository) read(id, op string) (*models.Run, error) {
	data, err := os.ReadFile(rr.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError(op, id, err)
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, persistence.NewRunError(op, id, fmt.Errorf("corrupt run document: %w", err))
	}

	return &run, nil
}

func (rr *RunRepository) write(run *models.Run, op string) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewRunError(op, run.ID, err)
	}

	if err := os.WriteFile(rr.filePath(run.ID), data, 0o600); err != nil {
		return persistence.NewRunError(op, run.ID, err)
	}

	return nil
}
