// Package stream delivers execution events to an observing client.
//
// Each execution owns one Stream. The scheduler publishes typed events in
// emission order; the stream assigns sequence numbers and forwards frames to
// a Sink. The default sink serialises Server-Sent-Events wire frames; a
// recorder sink captures events for tests.
package stream

// EventType tags the variants of the execution event stream.
type EventType string

// Stream event types. Complete and Error are terminal: nothing follows them.
const (
	EventNodeStart    EventType = "node-start"
	EventNodeComplete EventType = "node-complete"
	EventNodeError    EventType = "node-error"
	EventStreamToken  EventType = "stream-token"
	EventProgress     EventType = "progress"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one entry in an execution's ordered event channel.
type Event struct {
	// Type selects the payload shape.
	Type EventType `json:"type"`

	// NodeID is set for node-scoped events.
	NodeID string `json:"nodeId,omitempty"`

	// Payload is the JSON-serialisable event body written to the wire.
	Payload map[string]any `json:"payload"`

	// Seq is the order number assigned by the stream, starting at 1.
	Seq int `json:"seq"`
}

// Terminal reports whether no events may follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
