package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/persistence/postgresql"
	"github.com/runweave/runweave/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"run_events", "confirmation_requests", "runs", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("runweave_test"),
			postgres.WithUsername("runweave"),
			postgres.WithPassword("runweave"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"runs", "run_events", "confirmation_requests", "workflows"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	err := store.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := testutil.CreateTestRun(uuid.New().String())
	require.NoError(t, store.RunRepository().Create(ctx, run))

	stored, err := store.RunRepository().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.WorkflowID, stored.WorkflowID)
	assert.Equal(t, models.RunStatusCreated, stored.Status)
	assert.Nil(t, stored.FinishedAt)
}

func TestRunRepository_DuplicateIDRejected(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := testutil.CreateTestRun(uuid.New().String())
	require.NoError(t, store.RunRepository().Create(ctx, run))

	err := store.RunRepository().Create(ctx, run)
	assert.True(t, persistence.IsDuplicateRun(err))
}

func TestRunRepository_IdempotencyKeyUniquePerWorkflow(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflowID := uuid.New().String()

	first := testutil.CreateTestRun(workflowID)
	first.IdempotencyKey = "req-1"
	require.NoError(t, store.RunRepository().Create(ctx, first))

	second := testutil.CreateTestRun(workflowID)
	second.IdempotencyKey = "req-1"
	err := store.RunRepository().Create(ctx, second)
	assert.True(t, persistence.IsDuplicateRun(err))

	// The same key under another workflow is a different request.
	other := testutil.CreateTestRun(uuid.New().String())
	other.IdempotencyKey = "req-1"
	assert.NoError(t, store.RunRepository().Create(ctx, other))

	stored, err := store.RunRepository().GetByIdempotencyKey(ctx, workflowID, "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
}

func TestRunRepository_CompareAndSwapStatus(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := testutil.CreateTestRun(uuid.New().String())
	require.NoError(t, store.RunRepository().Create(ctx, run))

	running, err := store.RunRepository().CompareAndSwapStatus(ctx, run.ID,
		models.RunStatusCreated, models.RunStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, running.Status)

	// A stale expectation loses and reports the stored run.
	stale, err := store.RunRepository().CompareAndSwapStatus(ctx, run.ID,
		models.RunStatusCreated, models.RunStatusFailed, nil)
	assert.True(t, persistence.IsTransitionConflict(err))
	assert.Equal(t, models.RunStatusRunning, stale.Status)

	finishedAt := time.Now().UTC()

	finished, err := store.RunRepository().CompareAndSwapStatus(ctx, run.ID,
		models.RunStatusRunning, models.RunStatusCompleted, &finishedAt)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, finished.Status)
	require.NotNil(t, finished.FinishedAt)
	assert.WithinDuration(t, finishedAt, *finished.FinishedAt, time.Second)
}

func TestEventRepository_AppendAndList(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := testutil.CreateTestRun(uuid.New().String())
	require.NoError(t, store.RunRepository().Create(ctx, run))

	for i, eventType := range []events.EventType{events.WorkflowStartEvent, events.NodeStartEvent, events.NodeCompleteEvent} {
		sequence, err := store.EventRepository().Append(ctx, &events.RunEvent{
			Type:       eventType,
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Timestamp:  time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), sequence)
	}

	listed, err := store.EventRepository().List(ctx, run.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, int64(2), listed[0].Sequence)
	assert.Equal(t, int64(3), listed[1].Sequence)

	last, err := store.EventRepository().LastSequence(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestEventRepository_ConcurrentAppendsStayGapless(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := testutil.CreateTestRun(uuid.New().String())
	require.NoError(t, store.RunRepository().Create(ctx, run))

	const (
		appenders = 8
		perWorker = 25
	)

	var wg sync.WaitGroup

	for range appenders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perWorker {
				_, err := store.EventRepository().Append(ctx, &events.RunEvent{
					Type:       events.NodeCompleteEvent,
					RunID:      run.ID,
					WorkflowID: run.WorkflowID,
					Timestamp:  time.Now().UTC(),
				})
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()

	total := int64(appenders * perWorker)

	last, err := store.EventRepository().LastSequence(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, total, last)

	listed, err := store.EventRepository().List(ctx, run.ID, 0, int(total))
	require.NoError(t, err)
	require.Len(t, listed, int(total))

	for i, event := range listed {
		assert.Equal(t, int64(i+1), event.Sequence)
	}
}

func TestConfirmationRepository_ResolveOnce(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	request := &models.ConfirmationRequest{
		ID:              uuid.New().String(),
		RunID:           uuid.New().String(),
		WorkflowID:      uuid.New().String(),
		NodeID:          "notify",
		DefaultDecision: models.DecisionDeny,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.ConfirmationRepository().Create(ctx, request))

	resolved, won, err := store.ConfirmationRepository().Resolve(ctx, request.ID, models.DecisionAllow, "user")
	require.NoError(t, err)
	assert.True(t, won)
	require.NotNil(t, resolved.ResolvedDecision)
	assert.Equal(t, models.DecisionAllow, *resolved.ResolvedDecision)
	assert.Equal(t, "user", resolved.Source)

	// The second resolution loses and the first decision stands.
	again, won, err := store.ConfirmationRepository().Resolve(ctx, request.ID, models.DecisionDeny, "timeout")
	require.NoError(t, err)
	assert.False(t, won)
	require.NotNil(t, again.ResolvedDecision)
	assert.Equal(t, models.DecisionAllow, *again.ResolvedDecision)
	assert.Equal(t, "user", again.Source)
}

func TestConfirmationRepository_GetByIDMissing(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.ConfirmationRepository().GetByID(ctx, uuid.New().String())
	assert.True(t, persistence.IsConfirmationNotFound(err))
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	stored, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, stored.Name)
	assert.Len(t, stored.Nodes, len(workflow.Nodes))
	assert.Len(t, stored.Edges, len(workflow.Edges))

	_, err = store.WorkflowRepository().GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}
