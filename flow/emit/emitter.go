// Package emit provides pluggable observability for workflow executions.
//
// The engine reports lifecycle milestones (node started, node completed,
// execution failed) as Events. Emitters forward them to a backend: logs,
// an in-memory buffer for tests, or OpenTelemetry spans. This channel is
// operations-facing and distinct from the client event stream.
package emit

// Event is one observability record emitted during execution.
type Event struct {
	// ExecutionID identifies the run that produced the event.
	ExecutionID string

	// Seq is the sequential step number within the run, 1-indexed.
	// Zero for execution-level events.
	Seq int

	// NodeID is empty for execution-level events.
	NodeID string

	// Msg names the milestone: "node_start", "node_complete", "node_error",
	// "execution_complete", "execution_failed".
	Msg string

	// Meta carries additional structured data. Common keys: "duration_ms",
	// "error", "tokens", "model", "status".
	Meta map[string]any
}

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use across executions, must
// not block the scheduling goroutine, and must not panic; backend failures
// are handled internally.
type Emitter interface {
	Emit(event Event)
}
