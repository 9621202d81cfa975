package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_IsTerminal(t *testing.T) {
	assert.True(t, WorkflowCompleteEvent.IsTerminal())
	assert.True(t, WorkflowErrorEvent.IsTerminal())

	for _, eventType := range []EventType{
		WorkflowStartEvent, NodeStartEvent, NodeCompleteEvent,
		NodeErrorEvent, ConfirmRequiredEvent, ConfirmedEvent,
	} {
		assert.False(t, eventType.IsTerminal(), string(eventType))
	}
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, NodeStartEvent.Valid())
	assert.True(t, ConfirmedEvent.Valid())
	assert.False(t, EventType("node_paused").Valid())
	assert.False(t, EventType("").Valid())
}

func TestErrorPayload(t *testing.T) {
	payload := ErrorPayload(ErrorKindTimeout, "node exceeded its timeout budget", true)

	assert.Equal(t, ErrorKindTimeout, payload["kind"])
	assert.Equal(t, "node exceeded its timeout budget", payload["hint"])
	assert.Equal(t, true, payload["retryable"])
}
