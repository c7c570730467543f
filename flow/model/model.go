// Package model provides the AI text-generation collaborators consumed by
// node runners.
//
// The engine never talks to a provider SDK directly: runners receive a
// Generator and the provider subpackages (openai, anthropic, google) adapt
// the vendor SDKs to it. A MockGenerator serves tests and offline demos.
//
// Implementations should:
//   - Handle provider-specific authentication.
//   - Respect context cancellation and timeouts.
//   - Surface token usage where the provider reports it.
//
// Example usage:
//
//	gen := openai.NewGenerator(apiKey, "gpt-4o-mini")
//	out, err := gen.GenerateText(ctx, model.TextRequest{
//	    System: "You are a patient reading tutor.",
//	    Prompt: "Write two sentences about the water cycle.",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Text)
package model

import "context"

// Message roles shared with the execution conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a multi-turn request.
type Message struct {
	Role    string
	Content string
}

// TextRequest describes one completion request. Either Prompt or Messages
// is set; when both are present Messages wins and Prompt is ignored.
type TextRequest struct {
	Prompt   string
	Messages []Message

	// System sets provider-level behaviour instructions.
	System string

	// Model overrides the generator's default model name.
	Model string

	// Temperature in [0, 2]; zero means provider default.
	Temperature float64

	// MaxOutputTokens bounds the completion; zero means provider default.
	MaxOutputTokens int
}

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TextResult is the outcome of a completion request.
type TextResult struct {
	Text  string
	Model string
	Usage Usage
}

// TokenFunc receives streamed partial tokens in arrival order. Returning an
// error aborts the stream.
type TokenFunc func(token string) error

// StructuredRequest asks for output conforming to a JSON schema.
type StructuredRequest struct {
	TextRequest

	// Schema is a JSON-Schema-shaped mapping describing the desired object.
	Schema map[string]any
}

// Generator is the AI collaborator contract runners depend on.
type Generator interface {
	// GenerateText produces a single completion.
	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)

	// StreamText produces a completion token by token, invoking onToken for
	// each partial, and returns the assembled result.
	StreamText(ctx context.Context, req TextRequest, onToken TokenFunc) (TextResult, error)

	// GenerateStructured produces an object conforming to the request
	// schema.
	GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]any, error)
}
