package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()

	b.Emit(Event{ExecutionID: "e1", Seq: 1, NodeID: "a", Msg: "node_start"})
	b.Emit(Event{ExecutionID: "e1", Seq: 2, NodeID: "a", Msg: "node_complete"})
	b.Emit(Event{ExecutionID: "e2", Seq: 1, NodeID: "x", Msg: "node_start"})

	history := b.History("e1")
	if len(history) != 2 {
		t.Fatalf("History(e1) = %d events, want 2", len(history))
	}
	if history[0].Msg != "node_start" || history[1].Msg != "node_complete" {
		t.Errorf("history order = %s, %s", history[0].Msg, history[1].Msg)
	}
	if len(b.History("e2")) != 1 {
		t.Errorf("History(e2) = %d events, want 1", len(b.History("e2")))
	}
	if len(b.History("unknown")) != 0 {
		t.Error("unknown execution returned events")
	}

	// History hands out copies.
	history[0].Msg = "mutated"
	if b.History("e1")[0].Msg != "node_start" {
		t.Error("History returned shared backing storage")
	}

	b.Clear("e1")
	if len(b.History("e1")) != 0 {
		t.Error("Clear(e1) left events behind")
	}
	if len(b.History("e2")) != 1 {
		t.Error("Clear(e1) touched other executions")
	}

	b.Clear("")
	if len(b.History("e2")) != 0 {
		t.Error("Clear all left events behind")
	}
}

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)

	l.Emit(Event{
		ExecutionID: "exec-01",
		Seq:         3,
		NodeID:      "n2",
		Msg:         "node_complete",
		Meta:        map[string]any{"duration_ms": 12},
	})

	line := buf.String()
	for _, want := range []string{"[node_complete]", "execution=exec-01", "seq=3", "node=n2", `"duration_ms":12`} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line not newline-terminated")
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)

	l.Emit(Event{ExecutionID: "exec-01", Seq: 1, NodeID: "n1", Msg: "node_start"})

	var decoded struct {
		ExecutionID string `json:"executionId"`
		Seq         int    `json:"seq"`
		NodeID      string `json:"nodeId"`
		Msg         string `json:"msg"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON line %q: %v", buf.String(), err)
	}
	if decoded.ExecutionID != "exec-01" || decoded.Seq != 1 || decoded.NodeID != "n1" || decoded.Msg != "node_start" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNullEmitter(t *testing.T) {
	// Must accept events without side effects.
	NewNullEmitter().Emit(Event{ExecutionID: "e", Msg: "node_start"})
}
