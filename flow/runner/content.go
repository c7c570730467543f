package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/model"
	"github.com/ellworks/ellflow/flow/scaffold"
)

// levelDescriptions phrase the working language level for AI prompts.
var levelDescriptions = map[int]string{
	1: "a beginning English learner who needs very short, simple sentences",
	2: "an early-intermediate English learner who handles short compound sentences",
	3: "an intermediate English learner comfortable with grade-adjacent text",
	4: "an advanced English learner approaching grade-level text",
	5: "a proficient English learner reading at grade level",
}

// generate runs one AI completion in the student's voice, streaming tokens
// through the context when the generator supports it. Falls back to the
// supplied template text without a generator.
func (r runners) generate(ctx context.Context, ec *flow.ExecutionContext, nodeID, prompt, fallback string) (string, string, int, bool, error) {
	if r.cfg.Generator == nil {
		return fallback, "", 0, false, nil
	}
	req := model.TextRequest{
		Prompt: prompt,
		System: fmt.Sprintf(
			"You create learning content for %s. Grade: %s. Keep output focused and age-appropriate.",
			levelDescriptions[ec.CurrentLevel], studentGrade(ec),
		),
	}
	result, err := r.cfg.Generator.StreamText(ctx, req, func(token string) error {
		ec.EmitToken(token)
		return nil
	})
	if err != nil {
		return "", "", 0, false, &flow.ExecutionError{Kind: flow.ErrKindAIUnavailable, Message: err.Error()}
	}
	ec.AppendMessage(flow.RoleUser, prompt, nodeID)
	ec.AppendMessage(flow.RoleAssistant, result.Text, nodeID)
	return result.Text, result.Model, result.Usage.OutputTokens, true, nil
}

func studentGrade(ec *flow.ExecutionContext) string {
	if ec.Student != nil && ec.Student.GradeLevel != "" {
		return ec.Student.GradeLevel
	}
	return "unspecified"
}

// contentGenerator produces the primary learning content for a topic.
func (r runners) contentGenerator(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	topic := node.ConfigString("topic", inputString(input, "topic"))
	if topic == "" {
		topic = "today's lesson"
	}
	contentType := node.ConfigString("contentType", "explanation")
	length := node.ConfigString("length", "short")

	prompt := fmt.Sprintf("Write a %s %s about %s.", length, contentType, topic)
	fallback := fmt.Sprintf("Here is a %s about %s. We see %s every day. Let's learn about it together.",
		contentType, topic, topic)

	content, modelName, tokens, streamed, err := r.generate(ctx, ec, node.ID, prompt, fallback)
	if err != nil {
		return flow.RunnerResult{}, err
	}
	ec.AppendContent(node.ID, contentType, content)

	analysis := scaffold.Analyze(content)
	return flow.RunnerResult{
		Output: flow.Input{
			"content":          content,
			"readabilityLevel": analysis.SuggestedELPALevel,
			"wordCount":        analysis.TotalWords,
			"vocabulary":       keyWords(content, 5),
			"model":            modelName,
			"tokenCount":       tokens,
		},
		Streamed: streamed,
	}, nil
}

// mathProblemGenerator produces word problems with language supports.
func (r runners) mathProblemGenerator(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	topic := node.ConfigString("topic", "addition")
	count := node.ConfigInt("problemCount", 3)

	prompt := fmt.Sprintf(
		"Write %d math word problems practising %s. Use short sentences and everyday contexts.",
		count, topic,
	)
	fallback := fmt.Sprintf(
		"Problem 1: Sam has 3 apples. Ana gives Sam 2 more apples. How many apples does Sam have now? (Practising %s.)",
		topic,
	)

	content, modelName, tokens, streamed, err := r.generate(ctx, ec, node.ID, prompt, fallback)
	if err != nil {
		return flow.RunnerResult{}, err
	}
	ec.AppendContent(node.ID, "math-problems", content)
	return flow.RunnerResult{
		Output: flow.Input{
			"problems":     content,
			"topic":        topic,
			"problemCount": count,
			"model":        modelName,
			"tokenCount":   tokens,
		},
		Streamed: streamed,
	}, nil
}

// readingPassage produces a levelled passage and its readability analysis.
func (r runners) readingPassage(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	topic := node.ConfigString("topic", inputString(input, "topic"))
	if topic == "" {
		topic = "a day at school"
	}
	prompt := fmt.Sprintf("Write a short reading passage about %s.", topic)
	fallback := fmt.Sprintf("This passage is about %s. It has short sentences. Students read it and answer questions.", topic)

	content, modelName, tokens, streamed, err := r.generate(ctx, ec, node.ID, prompt, fallback)
	if err != nil {
		return flow.RunnerResult{}, err
	}
	ec.AppendContent(node.ID, "passage", content)

	analysis := scaffold.Analyze(content)
	return flow.RunnerResult{
		Output: flow.Input{
			"passage":     content,
			"content":     content,
			"readability": analysis,
			"model":       modelName,
			"tokenCount":  tokens,
		},
		Streamed: streamed,
	}, nil
}

// comprehensibleInput rewrites upstream content at the student's working
// level, applying the simplified-text adaptation.
func (r runners) comprehensibleInput(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	source := inputString(input, "content")
	prompt := fmt.Sprintf("Rewrite the following so %s can understand it:\n\n%s",
		levelDescriptions[ec.CurrentLevel], source)
	fallback := simplifyText(source)

	content, modelName, tokens, streamed, err := r.generate(ctx, ec, node.ID, prompt, fallback)
	if err != nil {
		return flow.RunnerResult{}, err
	}
	ec.RecordAdaptation("simplified-text")
	return flow.RunnerResult{
		Output: flow.Input{
			"content":       content,
			"originalText":  source,
			"adjustedLevel": ec.CurrentLevel,
			"model":         modelName,
			"tokenCount":    tokens,
		},
		Streamed: streamed,
	}, nil
}

// visualSupport describes visual aids to pair with the content. The engine
// produces descriptions, not images.
func (r runners) visualSupport(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	ec.RecordAdaptation("visual-supports")
	style := node.ConfigString("visualType", "diagram")
	return out(flow.Input{
		"content":    inputString(input, "content"),
		"visualType": style,
		"visuals": []map[string]any{
			{"type": style, "description": "labelled " + style + " of the key idea"},
			{"type": "word-picture pairs", "description": "picture cards for the new vocabulary"},
		},
	})
}

// aiModel is the raw completion node: it sends the incoming prompt to the
// generator with the configured parameters.
func (r runners) aiModel(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	prompt := inputString(input, "prompt")
	if prompt == "" {
		prompt = node.ConfigString("prompt", "")
	}
	if r.cfg.Generator == nil {
		return out(flow.Input{"text": prompt, "prompt": prompt})
	}
	req := model.TextRequest{
		Prompt:          prompt,
		Model:           node.ConfigString("model", ""),
		System:          node.ConfigString("system", ""),
		MaxOutputTokens: node.ConfigInt("maxOutputTokens", 0),
	}
	if t, ok := node.Config["temperature"].(float64); ok {
		req.Temperature = t
	}
	result, err := r.cfg.Generator.StreamText(ctx, req, func(token string) error {
		ec.EmitToken(token)
		return nil
	})
	if err != nil {
		return flow.RunnerResult{}, &flow.ExecutionError{Kind: flow.ErrKindAIUnavailable, Message: err.Error()}
	}
	ec.AppendMessage(flow.RoleAssistant, result.Text, node.ID)
	return flow.RunnerResult{
		Output: flow.Input{
			"text":       result.Text,
			"prompt":     prompt,
			"model":      result.Model,
			"tokenCount": result.Usage.OutputTokens,
		},
		Streamed: true,
	}, nil
}

// structuredOutput requests schema-conforming JSON from the generator.
func (r runners) structuredOutput(ctx context.Context, node flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	schema, _ := node.Config["schema"].(map[string]any)
	prompt := inputString(input, "prompt")
	if prompt == "" {
		prompt = node.ConfigString("prompt", "")
	}
	if r.cfg.Generator == nil {
		obj := make(map[string]any)
		if props, ok := schema["properties"].(map[string]any); ok {
			for name := range props {
				obj[name] = ""
			}
		}
		return out(flow.Input{"object": obj, "prompt": prompt})
	}
	obj, err := r.cfg.Generator.GenerateStructured(ctx, model.StructuredRequest{
		TextRequest: model.TextRequest{Prompt: prompt},
		Schema:      schema,
	})
	if err != nil {
		return flow.RunnerResult{}, &flow.ExecutionError{Kind: flow.ErrKindAIUnavailable, Message: err.Error()}
	}
	return out(flow.Input{"object": obj, "prompt": prompt})
}

// keyWords picks the longest distinct words as a crude vocabulary sample
// for the no-generator path.
func keyWords(text string, max int) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		if len(w) < 6 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if len(words) == max {
			break
		}
	}
	return words
}

// simplifyText is the deterministic fallback: keep the first clauses of
// each sentence and trim long ones.
func simplifyText(text string) string {
	if text == "" {
		return ""
	}
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var kept []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		words := strings.Fields(s)
		if len(words) > 12 {
			words = words[:12]
		}
		kept = append(kept, strings.Join(words, " "))
	}
	return strings.Join(kept, ". ") + "."
}
