package host

import (
	"encoding/json"

	"github.com/Iron-Ham/maabridge/internal/event"
)

// Event names pushed to the host.
const (
	EventCallback    = "maa-callback"
	EventAgentOutput = "maa-agent-output"
)

// Request is one command from the host.
type Request struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	OK     bool            `json:"ok"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// EventMessage is an unsolicited notification.
type EventMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// CallbackPayload is the payload of EventCallback.
type CallbackPayload struct {
	InstanceID string `json:"instance_id"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

// AgentOutputPayload is the payload of EventAgentOutput.
type AgentOutputPayload struct {
	InstanceID string `json:"instance_id"`
	Stream     string `json:"stream"`
	Line       string `json:"line"`
}

// toMessage converts bus events that are forwarded to the host.
func toMessage(e event.Event) (EventMessage, bool) {
	switch ev := e.(type) {
	case event.CallbackEvent:
		return EventMessage{Event: EventCallback, Payload: CallbackPayload{
			InstanceID: ev.InstanceID,
			Message:    ev.Message,
			Details:    ev.Details,
		}}, true
	case event.AgentOutputEvent:
		return EventMessage{Event: EventAgentOutput, Payload: AgentOutputPayload{
			InstanceID: ev.InstanceID,
			Stream:     ev.Stream,
			Line:       ev.Line,
		}}, true
	default:
		return EventMessage{}, false
	}
}
