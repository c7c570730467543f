package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Flusher is the subset of http.Flusher the SSE sink needs. http.ResponseWriter
// satisfies it in every mainstream server; tests pass a no-op.
type Flusher interface {
	Flush()
}

// SSESink serialises events as Server-Sent-Events wire frames:
//
//	event: node-complete
//	data: {"nodeId":"n1","output":{...}}
//
// Each frame is flushed immediately so clients observe node progress live.
// Writing to a closed sink is a no-op.
type SSESink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher Flusher
	closed  bool
}

// NewSSESink wraps a writer (typically an http.ResponseWriter) in an SSE
// encoder. flusher may be nil when the writer does not support flushing.
func NewSSESink(w io.Writer, flusher Flusher) *SSESink {
	return &SSESink{w: w, flusher: flusher}
}

// Write implements Sink. The event name goes on the event: line and the
// payload, JSON-encoded, on the data: line.
func (s *SSESink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		// Payloads are engine-built maps of JSON-safe values; a marshal
		// failure means a runner leaked an unserialisable type.
		data = []byte(fmt.Sprintf(`{"error":"unserialisable payload: %v"}`, err))
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		s.closed = true
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Close implements Sink.
func (s *SSESink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
