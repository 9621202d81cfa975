// Package file provides file-based persistence for runs, events and
// confirmation requests. Intended for development and tests; production
// deployments use the postgresql backend.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/runweave/runweave/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system. A process-wide lock table scopes contention per run, so
// appends for different runs do not serialize against each other.
type Persistence struct {
	root             string
	runRepo          *RunRepository
	eventRepo        *EventRepository
	confirmationRepo *ConfirmationRepository
	workflowRepo     *WorkflowRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	locks := newRunLocks()

	return &Persistence{
		root:             cleanRoot,
		runRepo:          NewRunRepository(cleanRoot, locks),
		eventRepo:        NewEventRepository(cleanRoot, locks),
		confirmationRepo: NewConfirmationRepository(cleanRoot),
		workflowRepo:     NewWorkflowRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there
// is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) EventRepository() persistence.EventRepository {
	return fp.eventRepo
}

func (fp *Persistence) ConfirmationRepository() persistence.ConfirmationRepository {
	return fp.confirmationRepo
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

// runLocks hands out one mutex per run ID. Sequence assignment and CAS
// transitions are the single points of contention per run; runs never
// contend with each other.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[string]*sync.Mutex)}
}

func (rl *runLocks) forRun(runID string) *sync.Mutex {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lock, ok := rl.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		rl.locks[runID] = lock
	}

	return lock
}
