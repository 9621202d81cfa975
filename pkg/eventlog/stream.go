package eventlog

import (
	"context"

	"github.com/runweave/runweave/pkg/events"
)

const streamBatchSize = 64

// Stream is a per-run live event sink handle. It yields the run's events
// in strict sequence order starting after the given cursor, waiting for
// new appends when it catches up. Reads go through the log's replay path,
// so a slow consumer can never force the producer to block or drop.
//
// A Stream is owned by a single consumer goroutine and must be closed
// when done.
type Stream struct {
	log    *Log
	runID  string
	cursor int64
	wake   chan struct{}
	buffer []*events.RunEvent
}

// NewStream opens a stream over the run's event log, resuming after
// cursor (0 streams from the first event).
func (l *Log) NewStream(runID string, cursor int64) *Stream {
	stream := &Stream{
		log:    l,
		runID:  runID,
		cursor: cursor,
	}
	stream.wake = l.subscribe(stream)

	return stream
}

// Next returns the next event in sequence order, blocking until one is
// appended or the context is done.
func (s *Stream) Next(ctx context.Context) (*events.RunEvent, error) {
	for {
		if len(s.buffer) > 0 {
			event := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.cursor = event.Sequence

			return event, nil
		}

		batch, err := s.log.repo.List(ctx, s.runID, s.cursor, streamBatchSize)
		if err != nil {
			return nil, err
		}

		if len(batch) > 0 {
			s.buffer = batch

			continue
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close detaches the stream from the log.
func (s *Stream) Close() {
	s.log.unsubscribe(s)
}
