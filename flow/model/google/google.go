// Package google adapts the Gemini SDK to the model.Generator contract.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ellworks/ellflow/flow/model"
)

// DefaultModel is used when the caller does not name one.
const DefaultModel = "gemini-1.5-flash"

// Generator implements model.Generator over the Gemini API.
//
// Unlike the other providers the SDK client holds a connection, so the
// generator is constructed with a context and must be closed.
type Generator struct {
	client    *genai.Client
	modelName string
}

// NewGenerator creates a generator over the given API key. An empty
// modelName selects DefaultModel.
func NewGenerator(ctx context.Context, apiKey, modelName string) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{client: client, modelName: modelName}, nil
}

// Close releases the underlying connection.
func (g *Generator) Close() error {
	return g.client.Close()
}

// GenerateText implements model.Generator.
func (g *Generator) GenerateText(ctx context.Context, req model.TextRequest) (model.TextResult, error) {
	m, prompt := g.prepare(req)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return model.TextResult{}, err
	}
	return g.result(resp)
}

// StreamText implements model.Generator.
func (g *Generator) StreamText(ctx context.Context, req model.TextRequest, onToken model.TokenFunc) (model.TextResult, error) {
	m, prompt := g.prepare(req)
	iter := m.GenerateContentStream(ctx, genai.Text(prompt))

	text := ""
	var usage model.Usage
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return model.TextResult{}, err
		}
		token := flatten(resp)
		text += token
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if onToken != nil && token != "" {
			if err := onToken(token); err != nil {
				return model.TextResult{}, err
			}
		}
	}
	return model.TextResult{Text: text, Model: g.modelName, Usage: usage}, nil
}

// GenerateStructured implements model.Generator using Gemini's native JSON
// response mode.
func (g *Generator) GenerateStructured(ctx context.Context, req model.StructuredRequest) (map[string]any, error) {
	m, prompt := g.prepare(req.TextRequest)
	m.ResponseMIMEType = "application/json"
	instruction := model.SchemaInstruction(req.Schema)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt+"\n\n"+instruction))
	if err != nil {
		return nil, err
	}
	out, err := g.result(resp)
	if err != nil {
		return nil, err
	}
	return model.ParseJSONObject(out.Text)
}

// prepare builds the per-request model handle. Gemini takes a single prompt
// string, so multi-turn transcripts are folded into one.
func (g *Generator) prepare(req model.TextRequest) (*genai.GenerativeModel, string) {
	name := req.Model
	if name == "" {
		name = g.modelName
	}
	m := g.client.GenerativeModel(name)
	if req.Temperature > 0 {
		m.SetTemperature(float32(req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	prompt := req.Prompt
	if len(req.Messages) > 0 {
		prompt = ""
		for _, msg := range req.Messages {
			prompt += msg.Role + ": " + msg.Content + "\n"
		}
	}
	return m, prompt
}

func (g *Generator) result(resp *genai.GenerateContentResponse) (model.TextResult, error) {
	text := flatten(resp)
	if text == "" {
		return model.TextResult{}, errors.New("gemini returned no text candidates")
	}
	out := model.TextResult{Text: text, Model: g.modelName}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func flatten(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}
