package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

// ConfirmationRepository stores confirmation requests as JSON documents
// under <root>/confirmations. One mutex guards resolution so that exactly
// one resolution wins.
type ConfirmationRepository struct {
	root string
	mu   sync.Mutex
}

// NewConfirmationRepository creates a new confirmation repository.
func NewConfirmationRepository(root string) *ConfirmationRepository {
	return &ConfirmationRepository{root: root}
}

func (cr *ConfirmationRepository) dir() string {
	return path.Join(cr.root, "confirmations")
}

func (cr *ConfirmationRepository) filePath(id string) string {
	return path.Join(cr.dir(), id+".json")
}

func (cr *ConfirmationRepository) Create(_ context.Context, request *models.ConfirmationRequest) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := os.MkdirAll(cr.dir(), dirPerm); err != nil {
		return &persistence.ConfirmationError{Op: "Create", ConfirmID: request.ID, Err: err}
	}

	return cr.write(request, "Create")
}

func (cr *ConfirmationRepository) GetByID(_ context.Context, id string) (*models.ConfirmationRequest, error) {
	return cr.read(id, "GetByID")
}

// Resolve records the decision unless the request is already resolved.
func (cr *ConfirmationRepository) Resolve(_ context.Context, id string, decision models.Decision, source string) (*models.ConfirmationRequest, bool, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	request, err := cr.read(id, "Resolve")
	if err != nil {
		return nil, false, err
	}

	if request.Resolved() {
		return request, false, nil
	}

	now := time.Now().UTC()
	request.ResolvedDecision = &decision
	request.Source = source
	request.ResolvedAt = &now

	if err := cr.write(request, "Resolve"); err != nil {
		return nil, false, err
	}

	return request, true, nil
}

func (cr *ConfirmationRepository) read(id, op string) (*models.ConfirmationRequest, error) {
	data, err := os.ReadFile(cr.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.ConfirmationError{Op: op, ConfirmID: id, Err: persistence.ErrConfirmationNotFound}
		}

		return nil, &persistence.ConfirmationError{Op: op, ConfirmID: id, Err: err}
	}

	var request models.ConfirmationRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, &persistence.ConfirmationError{Op: op, ConfirmID: id, Err: fmt.Errorf("corrupt confirmation document: %w", err)}
	}

	return &request, nil
}

func (cr *ConfirmationRepository) write(request *models.ConfirmationRequest, op string) error {
	data, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return &persistence.ConfirmationError{Op: op, ConfirmID: request.ID, Err: err}
	}

	if err := os.WriteFile(cr.filePath(request.ID), data, 0o600); err != nil {
		return &persistence.ConfirmationError{Op: op, ConfirmID: request.ID, Err: err}
	}

	return nil
}
