// Package confirmation implements the pause/resume protocol guarding
// externally visible node invocations.
package confirmation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

// DefaultTimeout bounds how long a confirmation request may stay
// unresolved before it auto-resolves to its default decision.
const DefaultTimeout = 5 * time.Minute

// Manager creates, resolves and times out confirmation requests.
type Manager struct {
	repo    persistence.ConfirmationRepository
	log     *eventlog.Log
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan models.Decision
}

// NewManager creates a confirmation manager. A non-positive timeout falls
// back to DefaultTimeout.
func NewManager(repo persistence.ConfirmationRepository, log *eventlog.Log, logger *slog.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Manager{
		repo:    repo,
		log:     log,
		logger:  logger,
		timeout: timeout,
		waiters: make(map[string]chan models.Decision),
	}
}

// Request creates a confirmation request for a side-effecting node and
// emits confirm_required. Only the requesting branch suspends; the engine
// keeps dispatching independent branches of the same run.
func (m *Manager) Request(ctx context.Context, runID, workflowID, nodeID string, defaultDecision models.Decision) (*models.ConfirmationRequest, error) {
	if !defaultDecision.Valid() {
		defaultDecision = models.DecisionDeny
	}

	request := &models.ConfirmationRequest{
		ID:              uuid.New().String(),
		RunID:           runID,
		WorkflowID:      workflowID,
		NodeID:          nodeID,
		DefaultDecision: defaultDecision,
		CreatedAt:       time.Now().UTC(),
	}

	if err := m.repo.Create(ctx, request); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.waiters[request.ID] = make(chan models.Decision, 1)
	m.mu.Unlock()

	_, err := m.log.Append(ctx, &events.RunEvent{
		Type:       events.ConfirmRequiredEvent,
		RunID:      runID,
		WorkflowID: workflowID,
		Payload: map[string]any{
			"confirm_id":       request.ID,
			"node_id":          nodeID,
			"default_decision": string(defaultDecision),
			"deadline":         request.CreatedAt.Add(m.timeout).Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Confirmation required",
		"run_id", runID, "node_id", nodeID, "confirm_id", request.ID)

	return request, nil
}

// Await blocks until the request is resolved or its deadline passes.
// Past the deadline it auto-resolves to the default decision with
// source=timeout. The returned decision is always the one that stuck.
func (m *Manager) Await(ctx context.Context, request *models.ConfirmationRequest) (models.Decision, error) {
	m.mu.Lock()
	waiter, ok := m.waiters[request.ID]
	m.mu.Unlock()

	if !ok {
		// Resolution may have landed before Await was entered.
		stored, err := m.repo.GetByID(ctx, request.ID)
		if err != nil {
			return models.DecisionDeny, err
		}

		if stored.Resolved() {
			return *stored.ResolvedDecision, nil
		}

		waiter = make(chan models.Decision, 1)
		m.mu.Lock()
		m.waiters[request.ID] = waiter
		m.mu.Unlock()
	}

	defer m.dropWaiter(request.ID)

	timer := time.NewTimer(time.Until(request.CreatedAt.Add(m.timeout)))
	defer timer.Stop()

	select {
	case decision := <-waiter:
		return decision, nil
	case <-timer.C:
		resolved, err := m.resolve(ctx, request.ID, request.DefaultDecision, models.ResolutionSourceTimeout)
		if err != nil {
			return models.DecisionDeny, err
		}

		return *resolved.ResolvedDecision, nil
	case <-ctx.Done():
		return models.DecisionDeny, ctx.Err()
	}
}

// Resolve settles the request with an explicit decision. Resolving an
// already-resolved request returns the original resolution unchanged.
func (m *Manager) Resolve(ctx context.Context, confirmID string, decision models.Decision) (*models.ConfirmationRequest, error) {
	return m.resolve(ctx, confirmID, decision, models.ResolutionSourceUser)
}

// Get returns the stored request.
func (m *Manager) Get(ctx context.Context, confirmID string) (*models.ConfirmationRequest, error) {
	return m.repo.GetByID(ctx, confirmID)
}

func (m *Manager) resolve(ctx context.Context, confirmID string, decision models.Decision, source string) (*models.ConfirmationRequest, error) {
	request, won, err := m.repo.Resolve(ctx, confirmID, decision, source)
	if err != nil {
		return nil, err
	}

	if !won {
		return request, nil
	}

	_, err = m.log.Append(ctx, &events.RunEvent{
		Type:       events.ConfirmedEvent,
		RunID:      request.RunID,
		WorkflowID: request.WorkflowID,
		Payload: map[string]any{
			"confirm_id": request.ID,
			"node_id":    request.NodeID,
			"decision":   string(*request.ResolvedDecision),
			"source":     request.Source,
		},
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	waiter, ok := m.waiters[confirmID]
	m.mu.Unlock()

	if ok {
		select {
		case waiter <- *request.ResolvedDecision:
		default:
		}
	}

	m.logger.InfoContext(ctx, "Confirmation resolved",
		"confirm_id", confirmID, "decision", *request.ResolvedDecision, "source", request.Source)

	return request, nil
}

func (m *Manager) dropWaiter(confirmID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.waiters, confirmID)
}
