package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/testutil"
)

func TestPersistence_HealthCheck(t *testing.T) {
	store := NewPersistence(t.TempDir())
	assert.NoError(t, store.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/path")
	assert.Error(t, missing.HealthCheck(context.Background()))
}

func TestNewPersistence_StripsFileScheme(t *testing.T) {
	dir := t.TempDir()
	store := NewPersistence("file://" + dir)

	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.RunRepository()

	run := testutil.CreateTestRun("wf-1")
	require.NoError(t, repo.Create(context.Background(), run))

	fetched, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, models.RunStatusCreated, fetched.Status)
}

func TestRunRepository_DuplicateIDRejected(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.RunRepository()

	run := testutil.CreateTestRun("wf-1")
	require.NoError(t, repo.Create(context.Background(), run))

	err := repo.Create(context.Background(), run)
	assert.True(t, persistence.IsDuplicateRun(err))
}

func TestRunRepository_DuplicateIdempotencyKeyRejected(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.RunRepository()

	first := testutil.CreateTestRun("wf-1")
	first.IdempotencyKey = "key-1"
	require.NoError(t, repo.Create(context.Background(), first))

	second := testutil.CreateTestRun("wf-1")
	second.IdempotencyKey = "key-1"

	err := repo.Create(context.Background(), second)
	assert.True(t, persistence.IsDuplicateRun(err))

	// The same key under another workflow is a different run.
	third := testutil.CreateTestRun("wf-2")
	third.IdempotencyKey = "key-1"
	assert.NoError(t, repo.Create(context.Background(), third))
}

func TestRunRepository_GetByIdempotencyKey(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.RunRepository()

	run := testutil.CreateTestRun("wf-1")
	run.IdempotencyKey = "key-1"
	require.NoError(t, repo.Create(context.Background(), run))

	fetched, err := repo.GetByIdempotencyKey(context.Background(), "wf-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)

	_, err = repo.GetByIdempotencyKey(context.Background(), "wf-1", "other-key")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRunRepository_CompareAndSwapStatus(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.RunRepository()

	run := testutil.CreateTestRun("wf-1")
	require.NoError(t, repo.Create(context.Background(), run))

	updated, err := repo.CompareAndSwapStatus(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, updated.Status)

	_, err = repo.CompareAndSwapStatus(context.Background(), run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	assert.True(t, persistence.IsTransitionConflict(err))

	now := time.Now().UTC()

	finished, err := repo.CompareAndSwapStatus(context.Background(), run.ID,
		models.RunStatusRunning, models.RunStatusCompleted, &now)
	require.NoError(t, err)
	require.NotNil(t, finished.FinishedAt)
	assert.Equal(t, now, *finished.FinishedAt)
}

func TestEventRepository_AppendAssignsSequence(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.EventRepository()

	for i := 1; i <= 3; i++ {
		sequence, err := repo.Append(context.Background(), &events.RunEvent{
			Type:  events.NodeStartEvent,
			RunID: "run-1",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i), sequence)
	}

	last, err := repo.LastSequence(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestEventRepository_ListAfterCursor(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.EventRepository()

	for i := 0; i < 5; i++ {
		_, err := repo.Append(context.Background(), &events.RunEvent{
			Type:  events.NodeStartEvent,
			RunID: "run-1",
		})
		require.NoError(t, err)
	}

	listed, err := repo.List(context.Background(), "run-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, int64(3), listed[0].Sequence)
	assert.Equal(t, int64(4), listed[1].Sequence)
}

func TestEventRepository_EmptyRunHasNoEvents(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.EventRepository()

	listed, err := repo.List(context.Background(), "run-none", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)

	last, err := repo.LastSequence(context.Background(), "run-none")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestConfirmationRepository_ResolveOnce(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.ConfirmationRepository()

	request := &models.ConfirmationRequest{
		ID:              "confirm-1",
		RunID:           "run-1",
		WorkflowID:      "wf-1",
		NodeID:          "notify",
		DefaultDecision: models.DecisionDeny,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), request))

	resolved, won, err := repo.Resolve(context.Background(), "confirm-1", models.DecisionAllow, models.ResolutionSourceUser)
	require.NoError(t, err)
	assert.True(t, won)
	require.NotNil(t, resolved.ResolvedDecision)
	assert.Equal(t, models.DecisionAllow, *resolved.ResolvedDecision)
	assert.NotNil(t, resolved.ResolvedAt)

	// A second resolution returns the original, unchanged.
	again, won, err := repo.Resolve(context.Background(), "confirm-1", models.DecisionDeny, models.ResolutionSourceTimeout)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, models.DecisionAllow, *again.ResolvedDecision)
	assert.Equal(t, models.ResolutionSourceUser, again.Source)
}

func TestConfirmationRepository_GetMissing(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.ConfirmationRepository().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsConfirmationNotFound(err))
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	store := NewPersistence(t.TempDir())
	repo := store.WorkflowRepository()

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, repo.Save(context.Background(), workflow))

	fetched, err := repo.GetByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, fetched.ID)
	assert.Len(t, fetched.Nodes, 3)
	assert.Len(t, fetched.Edges, 2)
}

func TestWorkflowRepository_GetMissing(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.WorkflowRepository().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
