package confirmation

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence/file"
)

func newTestManager(t *testing.T, timeout time.Duration) (*Manager, *eventlog.Log) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)
	log := eventlog.NewLog(store.EventRepository(), logger, nil)

	return NewManager(store.ConfirmationRepository(), log, logger, timeout), log
}

func eventTypes(t *testing.T, log *eventlog.Log, runID string) []events.EventType {
	t.Helper()

	page, err := log.Replay(context.Background(), runID, 0, 100)
	require.NoError(t, err)

	types := make([]events.EventType, 0, len(page.Events))
	for _, event := range page.Events {
		types = append(types, event.Type)
	}

	return types
}

func TestRequest_CreatesPendingRequestAndEmitsConfirmRequired(t *testing.T) {
	manager, log := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, "run-1", request.RunID)
	assert.Equal(t, "wf-1", request.WorkflowID)
	assert.Equal(t, "notify", request.NodeID)
	assert.Equal(t, models.DecisionDeny, request.DefaultDecision)
	assert.False(t, request.Resolved())

	page, err := log.Replay(context.Background(), "run-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, events.ConfirmRequiredEvent, page.Events[0].Type)
	assert.Equal(t, request.ID, page.Events[0].Payload["confirm_id"])
	assert.Equal(t, "deny", page.Events[0].Payload["default_decision"])
	assert.NotEmpty(t, page.Events[0].Payload["deadline"])
}

func TestRequest_InvalidDefaultDecisionFallsBackToDeny(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.Decision("maybe"))
	require.NoError(t, err)

	assert.Equal(t, models.DecisionDeny, request.DefaultDecision)
}

func TestResolve_WakesAwaitingBranch(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	results := make(chan models.Decision, 1)

	go func() {
		decision, err := manager.Await(context.Background(), request)
		assert.NoError(t, err)
		results <- decision
	}()

	time.Sleep(50 * time.Millisecond)

	_, err = manager.Resolve(context.Background(), request.ID, models.DecisionAllow)
	require.NoError(t, err)

	select {
	case decision := <-results:
		assert.Equal(t, models.DecisionAllow, decision)
	case <-time.After(5 * time.Second):
		t.Fatal("awaiting branch never woke up")
	}
}

func TestResolve_FirstWriterWins(t *testing.T) {
	manager, log := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	first, err := manager.Resolve(context.Background(), request.ID, models.DecisionAllow)
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedDecision)
	assert.Equal(t, models.DecisionAllow, *first.ResolvedDecision)
	assert.Equal(t, models.ResolutionSourceUser, first.Source)

	second, err := manager.Resolve(context.Background(), request.ID, models.DecisionDeny)
	require.NoError(t, err)
	require.NotNil(t, second.ResolvedDecision)
	assert.Equal(t, models.DecisionAllow, *second.ResolvedDecision)

	// Only the winning resolution emits confirmed.
	types := eventTypes(t, log, "run-1")
	assert.Equal(t, []events.EventType{events.ConfirmRequiredEvent, events.ConfirmedEvent}, types)
}

func TestResolve_ConcurrentResolutionsEmitOneConfirmedEvent(t *testing.T) {
	manager, log := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	var wg sync.WaitGroup

	decisions := []models.Decision{models.DecisionAllow, models.DecisionDeny}

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(decision models.Decision) {
			defer wg.Done()

			_, err := manager.Resolve(context.Background(), request.ID, decision)
			assert.NoError(t, err)
		}(decisions[i%2])
	}

	wg.Wait()

	types := eventTypes(t, log, "run-1")
	require.Len(t, types, 2)
	assert.Equal(t, events.ConfirmedEvent, types[1])
}

func TestAwait_TimeoutResolvesToDefaultDecision(t *testing.T) {
	manager, log := newTestManager(t, 50*time.Millisecond)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionAllow)
	require.NoError(t, err)

	decision, err := manager.Await(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, decision)

	stored, err := manager.Get(context.Background(), request.ID)
	require.NoError(t, err)
	require.True(t, stored.Resolved())
	assert.Equal(t, models.ResolutionSourceTimeout, stored.Source)

	page, err := log.Replay(context.Background(), "run-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "timeout", page.Events[1].Payload["source"])
}

func TestAwait_ResolutionBeforeAwaitIsReturned(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	_, err = manager.Resolve(context.Background(), request.ID, models.DecisionAllow)
	require.NoError(t, err)

	decision, err := manager.Await(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, decision)
}

func TestAwait_ContextCancellationDenies(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute)

	request, err := manager.Request(context.Background(), "run-1", "wf-1", "notify", models.DecisionDeny)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision, err := manager.Await(ctx, request)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.DecisionDeny, decision)
}
