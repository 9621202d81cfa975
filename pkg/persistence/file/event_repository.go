package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/persistence"
)

// EventRepository stores each run's event log as one JSON document under
// <root>/events. Appends hold the run's lock while assigning the next
// sequence, which keeps sequences gapless and strictly increasing.
type EventRepository struct {
	root  string
	locks *runLocks
}

// NewEventRepository creates a new event repository.
func NewEventRepository(root string, locks *runLocks) *EventRepository {
	return &EventRepository{root: root, locks: locks}
}

func (er *EventRepository) dir() string {
	return path.Join(er.root, "events")
}

func (er *EventRepository) filePath(runID string) string {
	return path.Join(er.dir(), runID+".json")
}

// Append assigns the next sequence for the run and persists the event.
func (er *EventRepository) Append(_ context.Context, event *events.RunEvent) (int64, error) {
	lock := er.locks.forRun(event.RunID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(er.dir(), dirPerm); err != nil {
		return 0, &persistence.EventError{Op: "Append", RunID: event.RunID, Err: err}
	}

	log, err := er.readAll(event.RunID, "Append")
	if err != nil {
		return 0, err
	}

	event.Sequence = int64(len(log)) + 1
	log = append(log, event)

	data, err := json.Marshal(log)
	if err != nil {
		return 0, &persistence.EventError{Op: "Append", RunID: event.RunID, Err: err}
	}

	if err := os.WriteFile(er.filePath(event.RunID), data, 0o600); err != nil {
		return 0, &persistence.EventError{Op: "Append", RunID: event.RunID, Err: err}
	}

	return event.Sequence, nil
}

// List returns events with sequence > cursor in strict sequence order.
func (er *EventRepository) List(_ context.Context, runID string, cursor int64, limit int) ([]*events.RunEvent, error) {
	log, err := er.readAll(runID, "List")
	if err != nil {
		return nil, err
	}

	result := make([]*events.RunEvent, 0, limit)

	for _, event := range log {
		if event.Sequence <= cursor {
			continue
		}

		result = append(result, event)
		if len(result) == limit {
			break
		}
	}

	return result, nil
}

// LastSequence returns the highest sequence appended for the run.
func (er *EventRepository) LastSequence(_ context.Context, runID string) (int64, error) {
	log, err := er.readAll(runID, "LastSequence")
	if err != nil {
		return 0, err
	}

	return int64(len(log)), nil
}

func (er *EventRepository) readAll(runID, op string) ([]*events.RunEvent, error) {
	data, err := os.ReadFile(er.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*events.RunEvent{}, nil
		}

		return nil, &persistence.EventError{Op: op, RunID: runID, Err: err}
	}

	var log []*events.RunEvent
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, &persistence.EventError{Op: op, RunID: runID, Err: fmt.Errorf("corrupt event log: %w", err)}
	}

	return log, nil
}
