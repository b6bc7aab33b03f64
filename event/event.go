// Package event provides the typed domain-event hub for the coordination kit.
// The bus knows nothing about boards; event types are open-ended strings
// defined by the publishing components.
package event

import "time"

// Event is an immutable record of something that already happened.
type Event interface {
	// Type returns the event type discriminant (e.g., "save-completed")
	Type() string

	// OccurredAt returns when the event was created
	OccurredAt() time.Time
}

// Base provides the common fields of a domain event. Embed it in concrete
// event types.
type Base struct {
	EventType string
	Time      time.Time
}

func (b Base) Type() string          { return b.EventType }
func (b Base) OccurredAt() time.Time { return b.Time }

// NewBase stamps a Base with the current wall-clock time.
func NewBase(eventType string) Base {
	return Base{EventType: eventType, Time: time.Now()}
}

// Generic is a free-form event for callers that do not need a dedicated type.
type Generic struct {
	Base
	Payload map[string]interface{}
}

// NewGeneric creates a Generic event with the given type and payload.
func NewGeneric(eventType string, payload map[string]interface{}) *Generic {
	return &Generic{Base: NewBase(eventType), Payload: payload}
}
