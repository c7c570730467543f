// Package runner provides the builtin node-runner library.
//
// Each runner implements one node kind from the catalogue: profile and
// curriculum nodes, AI-backed content generation, language scaffolding,
// interaction and assessment nodes, and the control-flow kinds the
// scheduler routes on. AI-backed runners degrade to deterministic template
// output when no generator is configured, which keeps workflows executable
// in tests and offline demos.
package runner

import (
	"fmt"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/model"
)

// Config carries the collaborators injected into runners.
type Config struct {
	// Generator backs the AI content runners. Nil selects deterministic
	// template output.
	Generator model.Generator
}

// NewRegistry builds the builtin registry. The returned map may be extended
// or overridden before handing it to an executor.
func NewRegistry(cfg Config) flow.RegistryMap {
	r := runners{cfg: cfg}
	return flow.RegistryMap{
		flow.NodeStudentProfile:       r.studentProfile,
		flow.NodeCurriculumSelector:   r.curriculumSelector,
		flow.NodeInput:                r.passthrough,
		flow.NodeOutput:               r.output,
		flow.NodeVariable:             r.variable,
		flow.NodePromptTemplate:       r.promptTemplate,
		flow.NodeContentGenerator:     r.contentGenerator,
		flow.NodeMathProblemGenerator: r.mathProblemGenerator,
		flow.NodeReadingPassage:       r.readingPassage,
		flow.NodeComprehensibleInput:  r.comprehensibleInput,
		flow.NodeVisualSupport:        r.visualSupport,
		flow.NodeAIModel:              r.aiModel,
		flow.NodeStructuredOutput:     r.structuredOutput,
		flow.NodeVocabularyBuilder:    r.vocabularyBuilder,
		flow.NodeScaffoldedContent:    r.scaffoldedContent,
		flow.NodeL1Bridge:             r.l1Bridge,
		flow.NodeWordProblemDecoder:   r.wordProblemDecoder,
		flow.NodeHumanInput:           r.humanInput,
		flow.NodeVoiceInput:           r.voiceInput,
		flow.NodeComprehensionCheck:   r.comprehensionCheck,
		flow.NodeMultipleChoice:       r.comprehensionCheck,
		flow.NodeFreeResponse:         r.freeResponse,
		flow.NodeOralPractice:         r.oralPractice,
		flow.NodeSpeakingAssessment:   r.speakingAssessment,
		flow.NodeConditional:          r.conditional,
		flow.NodeProficiencyRouter:    r.proficiencyRouter,
		flow.NodeLoop:                 r.loop,
		flow.NodeMerge:                r.merge,
		flow.NodeParallel:             r.passthrough,
		flow.NodeProgressTracker:      r.progressTracker,
		flow.NodeFeedbackGenerator:    r.feedbackGenerator,
		flow.NodeCelebration:          r.celebration,
	}
}

// runners groups the builtin implementations around the shared config.
type runners struct {
	cfg Config
}

// out wraps an output mapping in a plain completed result.
func out(output flow.Input) (flow.RunnerResult, error) {
	return flow.RunnerResult{Output: output}, nil
}

// inputString reads a string field from the assembled input.
func inputString(input flow.Input, key string) string {
	s, _ := input[key].(string)
	return s
}

// stringify renders a value for template substitution.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// inputNumber reads a numeric field, accepting the types JSON decoding and
// runners produce.
func inputNumber(input flow.Input, key string) (float64, bool) {
	switch v := input[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
