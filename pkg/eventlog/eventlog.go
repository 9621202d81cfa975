// Package eventlog provides the append-only per-run event log with
// monotonic sequencing, cursor-based replay and live streaming.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/runweave/runweave/pkg/events"
	"github.com/runweave/runweave/pkg/persistence"
)

const (
	// DefaultReplayLimit bounds one replay page when the caller passes
	// a non-positive limit.
	DefaultReplayLimit = 100

	// MaxReplayLimit caps a replay page regardless of the requested limit.
	MaxReplayLimit = 500
)

// Page is one cursor-paginated slice of a run's event log.
type Page struct {
	Events     []*events.RunEvent `json:"events"`
	NextCursor int64              `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

// Mirror receives a best-effort copy of every appended event, typically an
// event bus publisher. Mirror failures never fail the append.
type Mirror interface {
	Publish(ctx context.Context, key string, event events.RunEvent) error
}

// Log is the append-only event store for runs. The backing repository
// assigns sequence numbers atomically per run; the log adds live
// subscriber wake-ups on top so streaming consumers never poll blindly
// and never block the producer.
type Log struct {
	repo   persistence.EventRepository
	logger *slog.Logger
	mirror Mirror

	mu        sync.Mutex
	notifiers map[string]map[*Stream]chan struct{}
}

// NewLog creates a new event log over the given repository. mirror may be
// nil when no event bus is wired.
func NewLog(repo persistence.EventRepository, logger *slog.Logger, mirror Mirror) *Log {
	return &Log{
		repo:      repo,
		logger:    logger,
		mirror:    mirror,
		notifiers: make(map[string]map[*Stream]chan struct{}),
	}
}

// Append assigns the next sequence for the event's run, persists the
// event and wakes any live subscribers. The timestamp is stamped here
// when the producer left it zero.
func (l *Log) Append(ctx context.Context, event *events.RunEvent) (int64, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	sequence, err := l.repo.Append(ctx, event)
	if err != nil {
		return 0, err
	}

	l.notify(event.RunID)

	if l.mirror != nil {
		if err := l.mirror.Publish(ctx, event.RunID, *event); err != nil {
			l.logger.WarnContext(ctx, "Failed to mirror run event to bus",
				"run_id", event.RunID, "sequence", sequence, "error", err)
		}
	}

	return sequence, nil
}

// Replay returns events after the cursor in strict sequence order. The
// cursor denotes the last sequence already seen, so a reconnect at
// cursor=17 yields events 18 onward with no gap or duplicate.
func (l *Log) Replay(ctx context.Context, runID string, cursor int64, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	if limit > MaxReplayLimit {
		limit = MaxReplayLimit
	}

	page, err := l.repo.List(ctx, runID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	nextCursor := cursor
	if len(page) > 0 {
		nextCursor = page[len(page)-1].Sequence
	}

	return &Page{
		Events:     page,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// LastSequence returns the highest sequence appended for the run.
func (l *Log) LastSequence(ctx context.Context, runID string) (int64, error) {
	return l.repo.LastSequence(ctx, runID)
}

func (l *Log) notify(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, wake := range l.notifiers[runID] {
		select {
		case wake <- struct{}{}:
		default: // subscriber already has a pending wake-up
		}
	}
}

func (l *Log) subscribe(stream *Stream) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	wake := make(chan struct{}, 1)

	streams, ok := l.notifiers[stream.runID]
	if !ok {
		streams = make(map[*Stream]chan struct{})
		l.notifiers[stream.runID] = streams
	}

	streams[stream] = wake

	return wake
}

func (l *Log) unsubscribe(stream *Stream) {
	l.mu.Lock()
	defer l.mu.Unlock()

	streams, ok := l.notifiers[stream.runID]
	if !ok {
		return
	}

	delete(streams, stream)

	if len(streams) == 0 {
		delete(l.notifiers, stream.runID)
	}
}
