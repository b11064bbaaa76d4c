package events

import "matchpool/core/types"

// Event represents a structured state change emitted by a handler module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record adapts a raw types.Event to the Event interface.
type Record struct {
	Evt *types.Event
}

func (r Record) EventType() string {
	if r.Evt == nil {
		return ""
	}
	return r.Evt.Type
}

func (r Record) Event() *types.Event { return r.Evt }

// Buffer collects events in emission order until they are drained.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Truncate drops every event buffered after the first n.
func (b *Buffer) Truncate(n int) {
	if n < len(b.events) {
		b.events = b.events[:n]
	}
}

// Drain returns the buffered events and resets the buffer.
func (b *Buffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}
