package model

import (
	"context"
	"strings"
	"sync"
)

// MockGenerator is a scripted Generator for tests and offline demos.
//
// Responses are consumed in order; once the script is exhausted the mock
// falls back to echoing the prompt. All methods are safe for concurrent use.
//
//	gen := model.NewMockGenerator("first reply", "second reply")
//	out, _ := gen.GenerateText(ctx, model.TextRequest{Prompt: "hi"})
//	// out.Text == "first reply"
type MockGenerator struct {
	mu        sync.Mutex
	responses []string
	structs   []map[string]any
	err       error
	requests  []TextRequest
}

// NewMockGenerator creates a mock that replies with the given responses in
// order.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// FailWith makes every subsequent call return err.
func (m *MockGenerator) FailWith(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// QueueObject appends a scripted structured-output object.
func (m *MockGenerator) QueueObject(obj map[string]any) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structs = append(m.structs, obj)
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockGenerator) Requests() []TextRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TextRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GenerateText implements Generator.
func (m *MockGenerator) GenerateText(ctx context.Context, req TextRequest) (TextResult, error) {
	if err := ctx.Err(); err != nil {
		return TextResult{}, err
	}
	text, err := m.next(req)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{
		Text:  text,
		Model: "mock",
		Usage: Usage{InputTokens: approxTokens(req.Prompt), OutputTokens: approxTokens(text)},
	}, nil
}

// StreamText implements Generator. The scripted response is delivered word
// by word.
func (m *MockGenerator) StreamText(ctx context.Context, req TextRequest, onToken TokenFunc) (TextResult, error) {
	result, err := m.GenerateText(ctx, req)
	if err != nil {
		return TextResult{}, err
	}
	if onToken != nil {
		words := strings.Fields(result.Text)
		for i, w := range words {
			token := w
			if i < len(words)-1 {
				token += " "
			}
			if err := onToken(token); err != nil {
				return TextResult{}, err
			}
		}
	}
	return result, nil
}

// GenerateStructured implements Generator, returning queued objects in
// order. With no queued object the schema's property names come back with
// empty-string values so callers always receive a well-formed shape.
func (m *MockGenerator) GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req.TextRequest)
	if len(m.structs) > 0 {
		obj := m.structs[0]
		m.structs = m.structs[1:]
		return obj, nil
	}
	obj := make(map[string]any)
	if props, ok := req.Schema["properties"].(map[string]any); ok {
		for name := range props {
			obj[name] = ""
		}
	}
	return obj, nil
}

func (m *MockGenerator) next(req TextRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.requests = append(m.requests, req)
	if len(m.responses) > 0 {
		text := m.responses[0]
		m.responses = m.responses[1:]
		return text, nil
	}
	if req.Prompt != "" {
		return req.Prompt, nil
	}
	if n := len(req.Messages); n > 0 {
		return req.Messages[n-1].Content, nil
	}
	return "", nil
}

// approxTokens estimates usage for the mock: one token per word.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}
