package runs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/persistence/file"
)

func newTestManager(t *testing.T) (*Manager, *eventlog.Log) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)
	log := eventlog.NewLog(store.EventRepository(), logger, nil)

	return NewManager(store.RunRepository(), log, logger), log
}

func TestCreate_NewRunStartsInCreatedStatus(t *testing.T) {
	manager, _ := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "wf-1", run.WorkflowID)
	assert.Equal(t, "proj-1", run.ProjectID)
	assert.Equal(t, models.RunStatusCreated, run.Status)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Nil(t, run.FinishedAt)
}

func TestCreate_IdempotencyKeyReturnsExistingRun(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.Create(context.Background(), "wf-1", "proj-1", "key-1")
	require.NoError(t, err)

	second, err := manager.Create(context.Background(), "wf-1", "proj-1", "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestCreate_IdempotencyKeyIsScopedToWorkflow(t *testing.T) {
	manager, _ := newTestManager(t)

	first, err := manager.Create(context.Background(), "wf-1", "proj-1", "key-1")
	require.NoError(t, err)

	other, err := manager.Create(context.Background(), "wf-2", "proj-1", "key-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreate_ConcurrentSameKeyYieldsOneRun(t *testing.T) {
	manager, _ := newTestManager(t)

	var wg sync.WaitGroup

	ids := make([]string, 8)

	for i := range ids {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()

			run, err := manager.Create(context.Background(), "wf-1", "proj-1", "race-key")
			if assert.NoError(t, err) {
				ids[slot] = run.ID
			}
		}(i)
	}

	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestGet_MissingRunReturnsNotFound(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Get(context.Background(), "no-such-run")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestTransition_CreatedToRunning(t *testing.T) {
	manager, _ := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	updated, err := manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusRunning, updated.Status)
	assert.Nil(t, updated.FinishedAt)
}

func TestTransition_TerminalSetsFinishedAtAndAppendsMarker(t *testing.T) {
	manager, log := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)

	marker := &events.RunEvent{
		Type:       events.WorkflowCompleteEvent,
		WorkflowID: run.WorkflowID,
	}

	updated, err := manager.Transition(context.Background(), run.ID,
		models.RunStatusRunning, models.RunStatusCompleted, marker)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, updated.Status)
	require.NotNil(t, updated.FinishedAt)

	page, err := log.Replay(context.Background(), run.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, events.WorkflowCompleteEvent, page.Events[0].Type)
	assert.Equal(t, run.ID, page.Events[0].RunID)
}

func TestTransition_StaleExpectedStatusConflicts(t *testing.T) {
	manager, _ := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	assert.True(t, persistence.IsTransitionConflict(err))
}

func TestTransition_TerminalStatusIsAbsorbing(t *testing.T) {
	manager, _ := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusRunning, models.RunStatusFailed, nil)
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusFailed, models.RunStatusRunning, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_InvalidStatusRejected(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Transition(context.Background(), "run-1",
		models.RunStatus("bogus"), models.RunStatusRunning, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_ExactlyOneWinnerAppendsMarker(t *testing.T) {
	manager, log := newTestManager(t)

	run, err := manager.Create(context.Background(), "wf-1", "proj-1", "")
	require.NoError(t, err)

	_, err = manager.Transition(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)

	var wins, conflicts atomic.Int64

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			marker := &events.RunEvent{Type: events.WorkflowCompleteEvent, WorkflowID: run.WorkflowID}

			_, err := manager.Transition(context.Background(), run.ID,
				models.RunStatusRunning, models.RunStatusCompleted, marker)

			switch {
			case err == nil:
				wins.Add(1)
			case persistence.IsTransitionConflict(err):
				conflicts.Add(1)
			default:
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(7), conflicts.Load())

	page, err := log.Replay(context.Background(), run.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Events, 1)
}
