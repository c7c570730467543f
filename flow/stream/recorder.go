package stream

import "sync"

// RecorderSink captures events in memory. Tests use it to assert on event
// order and payloads without an HTTP layer.
type RecorderSink struct {
	mu     sync.Mutex
	events []Event
	closed bool

	// FailAfter, when > 0, makes Write return an error once that many
	// events have been accepted. Tests use it to simulate a client that
	// disconnects mid-run.
	FailAfter int
	failErr   error
}

// NewRecorderSink returns an empty recorder.
func NewRecorderSink() *RecorderSink {
	return &RecorderSink{}
}

// FailWith configures the error returned once FailAfter events have been
// written.
func (r *RecorderSink) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Write implements Sink.
func (r *RecorderSink) Write(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if r.FailAfter > 0 && len(r.events) >= r.FailAfter {
		return r.failError()
	}
	r.events = append(r.events, ev)
	return nil
}

// Close implements Sink.
func (r *RecorderSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *RecorderSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Closed reports whether the sink was closed.
func (r *RecorderSink) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *RecorderSink) failError() error {
	if r.failErr != nil {
		return r.failErr
	}
	return errClientGone
}

type clientGoneError struct{}

func (clientGoneError) Error() string { return "client disconnected" }

var errClientGone = clientGoneError{}
