package types

// Event represents a typed notification emitted during a state transition.
// Sequence is assigned when the event is published and is strictly increasing
// across the lifetime of a notification log.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Sequence: e.Sequence, Type: e.Type, Attributes: attrs}
}
