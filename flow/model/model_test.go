package model

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockGeneratorScript(t *testing.T) {
	gen := NewMockGenerator("first", "second")
	ctx := context.Background()

	out, err := gen.GenerateText(ctx, TextRequest{Prompt: "a"})
	if err != nil || out.Text != "first" {
		t.Fatalf("first call = %q, %v", out.Text, err)
	}
	out, _ = gen.GenerateText(ctx, TextRequest{Prompt: "b"})
	if out.Text != "second" {
		t.Fatalf("second call = %q", out.Text)
	}

	// Exhausted script echoes the prompt.
	out, _ = gen.GenerateText(ctx, TextRequest{Prompt: "echo me"})
	if out.Text != "echo me" {
		t.Fatalf("exhausted call = %q, want echo", out.Text)
	}

	if got := len(gen.Requests()); got != 3 {
		t.Errorf("recorded requests = %d, want 3", got)
	}
}

func TestMockGeneratorStreamTokens(t *testing.T) {
	gen := NewMockGenerator("one two three")
	var tokens []string
	out, err := gen.StreamText(context.Background(), TextRequest{Prompt: "x"}, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(tokens, "") != out.Text {
		t.Errorf("tokens %v do not reassemble %q", tokens, out.Text)
	}
	if len(tokens) != 3 {
		t.Errorf("tokens = %d, want 3", len(tokens))
	}
}

func TestMockGeneratorTokenAbort(t *testing.T) {
	gen := NewMockGenerator("one two three")
	abort := errors.New("client gone")
	_, err := gen.StreamText(context.Background(), TextRequest{Prompt: "x"}, func(string) error {
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("err = %v, want abort", err)
	}
}

func TestMockGeneratorFailWith(t *testing.T) {
	wantErr := errors.New("quota")
	gen := NewMockGenerator("unused").FailWith(wantErr)
	if _, err := gen.GenerateText(context.Background(), TextRequest{Prompt: "x"}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := gen.GenerateStructured(context.Background(), StructuredRequest{}); !errors.Is(err, wantErr) {
		t.Fatalf("structured err = %v, want %v", err, wantErr)
	}
}

func TestMockGeneratorStructured(t *testing.T) {
	gen := NewMockGenerator().QueueObject(map[string]any{"answer": 42})

	obj, err := gen.GenerateStructured(context.Background(), StructuredRequest{})
	if err != nil || obj["answer"] != 42 {
		t.Fatalf("queued object = %v, %v", obj, err)
	}

	// Without a queued object the schema shape comes back empty.
	obj, err = gen.GenerateStructured(context.Background(), StructuredRequest{
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
				"age":  map[string]any{"type": "number"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(obj) != 2 {
		t.Fatalf("obj = %v, want two schema-derived keys", obj)
	}
	if obj["name"] != "" || obj["age"] != "" {
		t.Errorf("obj = %v, want empty-string values", obj)
	}
}

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare", `{"word":"rain"}`, "rain"},
		{"fenced", "```json\n{\"word\":\"rain\"}\n```", "rain"},
		{"plain fence", "```\n{\"word\":\"rain\"}\n```", "rain"},
		{"leading prose", `Here is the object: {"word":"rain"}`, "rain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseJSONObject(tt.text)
			if err != nil {
				t.Fatalf("ParseJSONObject: %v", err)
			}
			if obj["word"] != tt.want {
				t.Errorf("word = %v, want %s", obj["word"], tt.want)
			}
		})
	}

	t.Run("no object", func(t *testing.T) {
		if _, err := ParseJSONObject("no json here"); err == nil {
			t.Error("expected error for prose-only output")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := ParseJSONObject(`{"word": }`); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

func TestSchemaInstruction(t *testing.T) {
	got := SchemaInstruction(map[string]any{"type": "object"})
	if !strings.Contains(got, `"type":"object"`) {
		t.Errorf("instruction missing schema: %q", got)
	}
	if !strings.HasPrefix(got, "Respond with a single JSON object") {
		t.Errorf("unexpected prefix: %q", got)
	}
}

func TestRateLimitedPassesThrough(t *testing.T) {
	inner := NewMockGenerator("reply")
	gen := NewRateLimited(inner, 100, 10)

	out, err := gen.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	if err != nil || out.Text != "reply" {
		t.Fatalf("GenerateText = %q, %v", out.Text, err)
	}
	if _, err := gen.GenerateStructured(context.Background(), StructuredRequest{}); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
}

func TestRateLimitedHonoursCancellation(t *testing.T) {
	// Zero sustained rate with an empty bucket: the second call must wait
	// forever, so a cancelled context surfaces immediately.
	gen := NewRateLimited(NewMockGenerator("a", "b"), 0.0001, 1)

	ctx := context.Background()
	if _, err := gen.GenerateText(ctx, TextRequest{Prompt: "x"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := gen.GenerateText(cancelled, TextRequest{Prompt: "y"}); err == nil {
		t.Fatal("expected context error from exhausted limiter")
	}
}
