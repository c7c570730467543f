package stream

import (
	"errors"
	"testing"
)

func TestPublishAssignsSequence(t *testing.T) {
	sink := NewRecorderSink()
	s := New(sink)

	s.Publish(Event{Type: EventNodeStart, NodeID: "a"})
	s.Publish(Event{Type: EventNodeComplete, NodeID: "a"})
	s.Publish(Event{Type: EventProgress})

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
	if s.Seq() != 3 {
		t.Errorf("Seq() = %d, want 3", s.Seq())
	}
}

func TestTerminalEventClosesStream(t *testing.T) {
	for _, terminal := range []EventType{EventComplete, EventError} {
		t.Run(string(terminal), func(t *testing.T) {
			sink := NewRecorderSink()
			s := New(sink)

			s.Publish(Event{Type: EventNodeStart, NodeID: "a"})
			s.Publish(Event{Type: terminal})
			s.Publish(Event{Type: EventNodeComplete, NodeID: "a"})

			events := sink.Events()
			if len(events) != 2 {
				t.Fatalf("events = %d, want 2 (publish after terminal dropped)", len(events))
			}
			if events[1].Type != terminal {
				t.Errorf("last event = %s, want %s", events[1].Type, terminal)
			}
			if !sink.Closed() {
				t.Error("sink not closed after terminal event")
			}
		})
	}
}

func TestSinkFailureAborts(t *testing.T) {
	sink := NewRecorderSink()
	sink.FailAfter = 2
	s := New(sink)

	aborted := 0
	s.OnAbort(func() { aborted++ })

	s.Publish(Event{Type: EventNodeStart, NodeID: "a"})
	s.Publish(Event{Type: EventNodeComplete, NodeID: "a"})
	s.Publish(Event{Type: EventProgress})
	s.Publish(Event{Type: EventComplete})

	if !s.Aborted() {
		t.Error("Aborted() = false, want true")
	}
	if aborted != 1 {
		t.Errorf("abort hook ran %d times, want 1", aborted)
	}
	if got := len(sink.Events()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
	if !sink.Closed() {
		t.Error("sink not closed on abort")
	}
}

func TestAbortIdempotent(t *testing.T) {
	sink := NewRecorderSink()
	s := New(sink)

	hooks := 0
	s.OnAbort(func() { hooks++ })

	s.Abort()
	s.Abort()
	s.Publish(Event{Type: EventNodeStart, NodeID: "a"})

	if hooks != 1 {
		t.Errorf("abort hook ran %d times, want 1", hooks)
	}
	if got := len(sink.Events()); got != 0 {
		t.Errorf("events after abort = %d, want 0", got)
	}
}

func TestRecorderFailWith(t *testing.T) {
	sink := NewRecorderSink()
	sink.FailAfter = 1
	custom := errors.New("broken pipe")
	sink.FailWith(custom)

	if err := sink.Write(Event{Type: EventNodeStart}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.Write(Event{Type: EventProgress}); !errors.Is(err, custom) {
		t.Fatalf("second write = %v, want %v", err, custom)
	}
}

func TestTerminalClassification(t *testing.T) {
	terminal := map[EventType]bool{
		EventNodeStart:    false,
		EventNodeComplete: false,
		EventNodeError:    false,
		EventStreamToken:  false,
		EventProgress:     false,
		EventComplete:     true,
		EventError:        true,
	}
	for typ, want := range terminal {
		if got := (Event{Type: typ}).Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", typ, got, want)
		}
	}
}
