package event

import "time"

// Event type identifiers.
const (
	TypeCallback          = "maa.callback"
	TypeAgentOutput       = "agent.output"
	TypeInstanceCreated   = "instance.created"
	TypeInstanceDestroyed = "instance.destroyed"
)

// Agent output streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "maa.callback", "agent.output")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// CallbackEvent carries one engine notification. Details is the raw JSON
// document the engine attached to the message.
type CallbackEvent struct {
	baseEvent
	InstanceID string
	Message    string
	Details    string
}

// NewCallbackEvent creates a CallbackEvent.
func NewCallbackEvent(instanceID, message, details string) CallbackEvent {
	return CallbackEvent{
		baseEvent:  newBaseEvent(TypeCallback),
		InstanceID: instanceID,
		Message:    message,
		Details:    details,
	}
}

// AgentOutputEvent carries one decoded line written by an agent process.
type AgentOutputEvent struct {
	baseEvent
	InstanceID string
	Stream     string // StreamStdout or StreamStderr
	Line       string
}

// NewAgentOutputEvent creates an AgentOutputEvent.
func NewAgentOutputEvent(instanceID, stream, line string) AgentOutputEvent {
	return AgentOutputEvent{
		baseEvent:  newBaseEvent(TypeAgentOutput),
		InstanceID: instanceID,
		Stream:     stream,
		Line:       line,
	}
}

// InstanceCreatedEvent is emitted when a new instance is registered.
type InstanceCreatedEvent struct {
	baseEvent
	InstanceID string
}

// NewInstanceCreatedEvent creates an InstanceCreatedEvent.
func NewInstanceCreatedEvent(instanceID string) InstanceCreatedEvent {
	return InstanceCreatedEvent{
		baseEvent:  newBaseEvent(TypeInstanceCreated),
		InstanceID: instanceID,
	}
}

// InstanceDestroyedEvent is emitted after an instance has been torn down.
type InstanceDestroyedEvent struct {
	baseEvent
	InstanceID string
}

// NewInstanceDestroyedEvent creates an InstanceDestroyedEvent.
func NewInstanceDestroyedEvent(instanceID string) InstanceDestroyedEvent {
	return InstanceDestroyedEvent{
		baseEvent:  newBaseEvent(TypeInstanceDestroyed),
		InstanceID: instanceID,
	}
}
