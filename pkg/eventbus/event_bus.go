// Package eventbus mirrors run events onto a message bus so external
// consumers can follow runs without holding an HTTP stream open.
package eventbus

import (
	"context"

	"github.com/runweave/runweave/pkg/events"
)

// EventHandler consumes one mirrored run event.
type EventHandler func(ctx context.Context, event *events.RunEvent) error

// EventPublisher is the producing half of the bus. It satisfies the
// event log's mirror contract.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.RunEvent) error
}

// EventSubscriber is the consuming half of the bus.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventBus mirrors run events in and out of a message transport. The
// event log remains the source of truth; the bus is a best-effort copy.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
