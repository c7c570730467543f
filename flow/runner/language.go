package runner

import (
	"context"
	"fmt"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/model"
	"github.com/ellworks/ellflow/flow/scaffold"
)

// defaultMaxVocabulary bounds vocabulary-builder output.
const defaultMaxVocabulary = 5

// vocabularyBuilder extracts key vocabulary from upstream content with
// definitions and L1 translations.
func (r runners) vocabularyBuilder(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	source := inputString(input, "content")
	maxWords := node.ConfigInt("maxWords", defaultMaxVocabulary)
	if maxWords > defaultMaxVocabulary {
		maxWords = defaultMaxVocabulary
	}
	l1 := ""
	if ec.Student != nil {
		l1 = ec.Student.NativeLanguage
	}

	var vocabulary []map[string]any
	if r.cfg.Generator != nil {
		obj, err := r.cfg.Generator.GenerateStructured(ctx, model.StructuredRequest{
			TextRequest: model.TextRequest{
				Prompt: fmt.Sprintf(
					"Pick the %d most important words in this text. For each give a student-friendly definition and a translation into %s.\n\n%s",
					maxWords, l1, source,
				),
			},
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"words": map[string]any{"type": "array"},
				},
			},
		})
		if err != nil {
			return flow.RunnerResult{}, &flow.ExecutionError{Kind: flow.ErrKindAIUnavailable, Message: err.Error()}
		}
		if words, ok := obj["words"].([]any); ok {
			for _, w := range words {
				if entry, ok := w.(map[string]any); ok {
					vocabulary = append(vocabulary, entry)
				}
				if len(vocabulary) == maxWords {
					break
				}
			}
		}
	}
	if vocabulary == nil {
		for _, w := range keyWords(source, maxWords) {
			vocabulary = append(vocabulary, map[string]any{
				"word":          w,
				"definition":    "a key word from the text",
				"l1Translation": "",
			})
		}
	}

	ec.RecordAdaptation("word-bank")
	return out(flow.Input{
		"vocabulary":    vocabulary,
		"sourceContent": source,
	})
}

// scaffoldedContent layers language supports onto upstream content at the
// student's working level.
func (r runners) scaffoldedContent(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	source := inputString(input, "content")
	level := ec.CurrentLevel
	topic := node.ConfigString("topic", inputString(input, "topic"))

	frames := scaffold.Frames(topic, level, node.ConfigInt("frameCount", 0))
	supports := supportsForLevel(level)
	for _, s := range supports {
		ec.RecordAdaptation(s)
	}

	return out(flow.Input{
		"content":       source,
		"scaffolding":   frames,
		"supports":      supports,
		"adjustedLevel": level,
	})
}

// supportsForLevel names the scaffolding techniques appropriate at each
// working level. Lower levels get more supports.
func supportsForLevel(level int) []string {
	switch level {
	case 1:
		return []string{"sentence-starters", "word-bank", "visual-supports", "l1-glossary"}
	case 2:
		return []string{"sentence-starters", "word-bank", "visual-supports"}
	case 3:
		return []string{"sentence-frames", "word-bank"}
	case 4:
		return []string{"sentence-frames"}
	default:
		return []string{"graphic-organizer"}
	}
}

// l1Bridge provides primary-language support for upstream content.
func (r runners) l1Bridge(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	source := inputString(input, "content")
	l1 := "the student's first language"
	if ec.Student != nil && ec.Student.NativeLanguage != "" {
		l1 = ec.Student.NativeLanguage
	}
	mode := node.ConfigString("bridgeMode", "key-terms")

	translated := ""
	if r.cfg.Generator != nil {
		prompt := fmt.Sprintf("Translate the key ideas of this text into %s (%s mode):\n\n%s", l1, mode, source)
		text, _, _, _, err := r.generate(ctx, ec, node.ID, prompt, "")
		if err != nil {
			return flow.RunnerResult{}, err
		}
		translated = text
	}

	ec.RecordAdaptation("l1-glossary")
	return out(flow.Input{
		"originalText":   source,
		"translatedText": translated,
		"keyTerms":       keyWords(source, defaultMaxVocabulary),
		"language":       l1,
		"bridgeMode":     mode,
	})
}

// wordProblemDecoder breaks a math word problem into language-accessible
// steps: what the problem asks, the numbers involved, the operation clues.
func (r runners) wordProblemDecoder(ctx context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	problem := inputString(input, "problems")
	if problem == "" {
		problem = inputString(input, "content")
	}

	prompt := fmt.Sprintf(
		"Decode this word problem for %s: name the question being asked, list the numbers, and point out the words that signal the operation.\n\n%s",
		levelDescriptions[ec.CurrentLevel], problem,
	)
	fallback := "Read the problem twice. Underline the question. Circle the numbers. Look for signal words like 'more', 'fewer', 'in all'."

	decoded, modelName, tokens, streamed, err := r.generate(ctx, ec, node.ID, prompt, fallback)
	if err != nil {
		return flow.RunnerResult{}, err
	}
	ec.RecordAdaptation("problem-decoding")
	return flow.RunnerResult{
		Output: flow.Input{
			"problem":    problem,
			"decoded":    decoded,
			"model":      modelName,
			"tokenCount": tokens,
		},
		Streamed: streamed,
	}, nil
}
