// Package anthropic adapts the official Anthropic SDK to the
// model.Generator contract.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ellworks/ellflow/flow/model"
)

// DefaultModel is used when the caller does not name one.
const DefaultModel = "claude-3-5-haiku-latest"

// defaultMaxTokens applies when the request does not bound the completion;
// the Anthropic API requires an explicit ceiling.
const defaultMaxTokens = 1024

// Generator implements model.Generator over the Anthropic Messages API.
type Generator struct {
	client    anthropic.Client
	modelName string
}

// NewGenerator creates a generator over the given API key. An empty
// modelName selects DefaultModel.
func NewGenerator(apiKey, modelName string) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

// GenerateText implements model.Generator.
func (g *Generator) GenerateText(ctx context.Context, req model.TextRequest) (model.TextResult, error) {
	msg, err := g.client.Messages.New(ctx, g.params(req))
	if err != nil {
		return model.TextResult{}, err
	}
	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return model.TextResult{
		Text:  text,
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// StreamText implements model.Generator.
func (g *Generator) StreamText(ctx context.Context, req model.TextRequest, onToken model.TokenFunc) (model.TextResult, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(req))
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return model.TextResult{}, err
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if onToken != nil && delta.Text != "" {
					if err := onToken(delta.Text); err != nil {
						return model.TextResult{}, err
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return model.TextResult{}, err
	}
	text := ""
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return model.TextResult{
		Text:  text,
		Model: string(message.Model),
		Usage: model.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
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

func (g *Generator) params(req model.TextRequest) anthropic.MessageNewParams {
	name := req.Model
	if name == "" {
		name = g.modelName
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func convertMessages(req model.TextRequest) []anthropic.MessageParam {
	if len(req.Messages) == 0 {
		return []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		}
	}
	var out []anthropic.MessageParam
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			// System entries inside the transcript fold into user turns;
			// top-level system instructions travel in params.System.
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
