// Package openai adapts the official OpenAI SDK to the model.Generator
// contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ellworks/ellflow/flow/model"
)

// DefaultModel is used when the caller does not name one.
const DefaultModel = "gpt-4o-mini"

// Generator implements model.Generator over OpenAI's chat completion API
// with automatic retry for transient errors.
//
//	gen := openai.NewGenerator(os.Getenv("OPENAI_API_KEY"), "")
//	out, err := gen.GenerateText(ctx, model.TextRequest{Prompt: "..."})
type Generator struct {
	modelName  string
	client     completionClient
	maxRetries int
	retryDelay time.Duration
}

// completionClient is the slice of the SDK the generator exercises,
// separated out so tests can substitute a fake.
type completionClient interface {
	complete(ctx context.Context, req model.TextRequest) (model.TextResult, error)
	stream(ctx context.Context, req model.TextRequest, onToken model.TokenFunc) (model.TextResult, error)
}

// NewGenerator creates a generator over the given API key. An empty
// modelName selects DefaultModel.
func NewGenerator(apiKey, modelName string) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{
		modelName:  modelName,
		client:     &sdkClient{client: openai.NewClient(option.WithAPIKey(apiKey)), modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GenerateText implements model.Generator. Transient failures (rate limits,
// 5xx, network) are retried with linear backoff.
func (g *Generator) GenerateText(ctx context.Context, req model.TextRequest) (model.TextResult, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		out, err := g.client.complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) || attempt >= g.maxRetries {
			break
		}
		select {
		case <-time.After(g.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.TextResult{}, ctx.Err()
		}
	}
	return model.TextResult{}, fmt.Errorf("openai completion failed: %w", lastErr)
}

// StreamText implements model.Generator. Streams are not retried: partial
// tokens may already have reached the client.
func (g *Generator) StreamText(ctx context.Context, req model.TextRequest, onToken model.TokenFunc) (model.TextResult, error) {
	return g.client.stream(ctx, req, onToken)
}

// GenerateStructured implements model.Generator by requesting JSON output
// and decoding it.
func (g *Generator) GenerateStructured(ctx context.Context, req model.StructuredRequest) (map[string]any, error) {
	text := req.TextRequest
	instruction := model.SchemaInstruction(req.Schema)
	if text.System == "" {
		text.System = instruction
	} else {
		text.System += "\n" + instruction
	}
	out, err := g.GenerateText(ctx, text)
	if err != nil {
		return nil, err
	}
	return model.ParseJSONObject(out.Text)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporary"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// sdkClient drives the real SDK.
type sdkClient struct {
	client    openai.Client
	modelName string
}

func (c *sdkClient) params(req model.TextRequest) openai.ChatCompletionNewParams {
	name := req.Model
	if name == "" {
		name = c.modelName
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(name),
		Messages: convertMessages(req),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	return params
}

func convertMessages(req model.TextRequest) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			switch m.Role {
			case model.RoleSystem:
				out = append(out, openai.SystemMessage(m.Content))
			case model.RoleAssistant:
				out = append(out, openai.AssistantMessage(m.Content))
			default:
				out = append(out, openai.UserMessage(m.Content))
			}
		}
		return out
	}
	return append(out, openai.UserMessage(req.Prompt))
}

func (c *sdkClient) complete(ctx context.Context, req model.TextRequest) (model.TextResult, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return model.TextResult{}, err
	}
	if len(resp.Choices) == 0 {
		return model.TextResult{}, errors.New("openai returned no choices")
	}
	return model.TextResult{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (c *sdkClient) stream(ctx context.Context, req model.TextRequest, onToken model.TokenFunc) (model.TextResult, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" || onToken == nil {
			continue
		}
		if err := onToken(token); err != nil {
			return model.TextResult{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return model.TextResult{}, err
	}
	text := ""
	if len(acc.Choices) > 0 {
		text = acc.Choices[0].Message.Content
	}
	return model.TextResult{
		Text:  text,
		Model: acc.Model,
		Usage: model.Usage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		},
	}, nil
}
