package stream

import (
	"sync"
)

// Sink receives serialised events. The SSE writer is one implementation; a
// test recorder is another. The engine talks only to this interface.
type Sink interface {
	// Write delivers one event. A non-nil error marks the client as gone;
	// the stream stops enqueueing and reports the abort.
	Write(ev Event) error

	// Close releases the sink after a terminal event. Closing twice is a
	// no-op.
	Close() error
}

// Stream is the per-execution ordered event channel.
//
// Contracts:
//   - events are forwarded in the order Publish is called; no reordering
//   - complete and error close the stream; later publishes are dropped
//   - a sink write failure flips the aborted flag, invokes the abort hook
//     once, and silently swallows subsequent events
//
// Publish is not safe for concurrent use; executions are single-threaded by
// design and the one scheduling goroutine is the only publisher.
type Stream struct {
	sink Sink

	mu      sync.Mutex
	seq     int
	closed  bool
	aborted bool
	onAbort func()
}

// New creates a stream over the given sink. sink must be non-nil.
func New(sink Sink) *Stream {
	return &Stream{sink: sink}
}

// OnAbort registers the hook invoked when the client disconnects. The
// scheduler uses it to cancel the execution.
func (s *Stream) OnAbort(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAbort = fn
}

// Publish assigns the next sequence number and forwards the event.
// Publishing to a closed or aborted stream is a no-op, never a failure.
func (s *Stream) Publish(ev Event) {
	s.mu.Lock()
	if s.closed || s.aborted {
		s.mu.Unlock()
		return
	}
	s.seq++
	ev.Seq = s.seq
	terminal := ev.Terminal()
	if terminal {
		s.closed = true
	}
	sink := s.sink
	hook := s.onAbort
	s.mu.Unlock()

	if err := sink.Write(ev); err != nil {
		s.abort(hook)
		return
	}
	if terminal {
		_ = sink.Close()
	}
}

// Abort marks the stream dead without a terminal event, typically because
// the consumer went away. Idempotent.
func (s *Stream) Abort() {
	s.mu.Lock()
	hook := s.onAbort
	s.mu.Unlock()
	s.abort(hook)
}

// Aborted reports whether the client disconnected before a terminal event.
func (s *Stream) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Seq returns the sequence number of the most recently published event.
func (s *Stream) Seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Stream) abort(hook func()) {
	s.mu.Lock()
	if s.aborted || s.closed {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.mu.Unlock()

	_ = s.sink.Close()
	if hook != nil {
		hook()
	}
}
