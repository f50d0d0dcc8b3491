package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Lifecycle Events
// ============================================================================
// Lifecycle events are produced by the assistant runtime (through IPC or the
// emit subcommand) and consumed exactly once by the dispatcher.
// ============================================================================

// LifecycleEvent is a marker interface for all assistant lifecycle events.
type LifecycleEvent interface {
	lifecycleEvent()
}

// TurnStarted is emitted when the assistant starts listening to the user.
type TurnStarted struct{}

func (TurnStarted) lifecycleEvent() {}

// TurnFinished is emitted when a conversation turn ends. WithFollowOn is set
// when the assistant expects the user to keep talking.
type TurnFinished struct {
	WithFollowOn bool `json:"with_follow_on_turn"`
}

func (TurnFinished) lifecycleEvent() {}

// TurnTimeout is emitted when the assistant gave up waiting for speech.
type TurnTimeout struct{}

func (TurnTimeout) lifecycleEvent() {}

// ServiceReady is emitted once the assistant service finished starting.
type ServiceReady struct{}

func (ServiceReady) lifecycleEvent() {}

// UnrecognizedEvent carries any event type the dispatcher has no transition
// for. It is acknowledged and ignored.
type UnrecognizedEvent struct {
	Type string `json:"type"`
}

func (UnrecognizedEvent) lifecycleEvent() {}

// Wire names, chosen to match the assistant library event names.
const (
	eventTypeTurnStarted  = "conversation_turn_started"
	eventTypeTurnFinished = "conversation_turn_finished"
	eventTypeTurnTimeout  = "conversation_turn_timeout"
	eventTypeServiceReady = "start_finished"
)

// eventTypeName returns the wire name of ev.
func eventTypeName(ev LifecycleEvent) string {
	switch e := ev.(type) {
	case TurnStarted:
		return eventTypeTurnStarted
	case TurnFinished:
		return eventTypeTurnFinished
	case TurnTimeout:
		return eventTypeTurnTimeout
	case ServiceReady:
		return eventTypeServiceReady
	case UnrecognizedEvent:
		return e.Type
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete event.
// Unknown types are not an error: they decode to UnrecognizedEvent so the
// dispatcher can acknowledge them.
func UnmarshalEvent(data []byte) (LifecycleEvent, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("unmarshal envelope: missing type")
	}

	switch env.Type {
	case eventTypeTurnStarted:
		return TurnStarted{}, nil

	case eventTypeTurnFinished:
		var e TurnFinished
		// A finished event without args ends the conversation.
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &e); err != nil {
				return nil, fmt.Errorf("unmarshal TurnFinished: %w", err)
			}
		}
		return e, nil

	case eventTypeTurnTimeout:
		return TurnTimeout{}, nil

	case eventTypeServiceReady:
		return ServiceReady{}, nil

	default:
		return UnrecognizedEvent{Type: env.Type}, nil
	}
}

// MarshalEvent serializes an event into a JSON envelope with type discriminator
func MarshalEvent(ev LifecycleEvent) ([]byte, error) {
	var env EventEnvelope

	switch e := ev.(type) {
	case TurnStarted, TurnTimeout, ServiceReady:
		env.Type = eventTypeName(e)

	case TurnFinished:
		env.Type = eventTypeTurnFinished
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal TurnFinished: %w", err)
		}
		env.Data = data

	case UnrecognizedEvent:
		if e.Type == "" {
			return nil, fmt.Errorf("marshal UnrecognizedEvent: empty type")
		}
		env.Type = e.Type

	default:
		return nil, fmt.Errorf("unsupported event type: %T", ev)
	}

	return json.Marshal(env)
}
