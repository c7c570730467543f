package runner

import (
	"context"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/scaffold"
)

// humanInput pauses the execution until the caller resumes with an answer.
// The scheduler injects the answer into this node's output under
// "userAnswer".
func (r runners) humanInput(_ context.Context, node flow.Node, _ flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	return flow.RunnerResult{
		Output: flow.Input{
			"prompt":    node.ConfigString("prompt", "Your answer?"),
			"inputType": node.ConfigString("inputType", "text"),
			"awaiting":  true,
		},
		Pause: true,
	}, nil
}

// voiceInput is humanInput with a spoken modality hint; transcription is the
// caller's concern, the resumed answer arrives as text.
func (r runners) voiceInput(_ context.Context, node flow.Node, _ flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	return flow.RunnerResult{
		Output: flow.Input{
			"prompt":    node.ConfigString("prompt", "Say your answer."),
			"inputType": "voice",
			"awaiting":  true,
		},
		Pause: true,
	}, nil
}

// comprehensionCheck presents configured questions. It is passive: scoring
// and routing happen downstream.
func (r runners) comprehensionCheck(_ context.Context, node flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	questions, _ := node.Config["questions"].([]any)
	return out(flow.Input{
		"questions":     questions,
		"passThreshold": node.ConfigInt("passThreshold", 70),
		"content":       inputString(input, "content"),
	})
}

// freeResponse frames an open-ended writing task with sentence frames at
// the student's level.
func (r runners) freeResponse(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	topic := node.ConfigString("topic", inputString(input, "topic"))
	return out(flow.Input{
		"prompt":         node.ConfigString("prompt", "Write what you learned."),
		"sentenceFrames": scaffold.Frames(topic, ec.CurrentLevel, 3),
		"minSentences":   node.ConfigInt("minSentences", 2),
	})
}

// oralPractice frames a speaking task; sentence frames double as speaking
// starters.
func (r runners) oralPractice(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	topic := node.ConfigString("topic", inputString(input, "topic"))
	ec.RecordAdaptation("sentence-starters")
	return out(flow.Input{
		"task":       node.ConfigString("task", "Tell a partner about "+topic+"."),
		"starters":   scaffold.Frames(topic, ec.CurrentLevel, 3),
		"repetition": node.ConfigInt("repetitions", 2),
	})
}

// speakingAssessment scores a spoken (transcribed) response against simple
// fluency heuristics and adjusts the working level on strong or weak
// evidence.
func (r runners) speakingAssessment(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	transcript := inputString(input, "userAnswer")
	if transcript == "" {
		transcript = inputString(input, "transcript")
	}
	analysis := scaffold.Analyze(transcript)

	// Crude rubric: sentence production and word variety against the
	// expectations for the current level.
	score := 50
	if analysis.TotalWords >= 5*ec.CurrentLevel {
		score += 25
	}
	if analysis.TotalSentences >= 2 {
		score += 25
	}
	if analysis.TotalWords == 0 {
		score = 0
	}

	switch {
	case score >= 80 && ec.CurrentLevel < 5:
		ec.AdjustLevel(ec.CurrentLevel + 1)
	case score < 50 && ec.CurrentLevel > 1:
		ec.AdjustLevel(ec.CurrentLevel - 1)
	}

	return out(flow.Input{
		"transcript": transcript,
		"score":      score,
		"wordCount":  analysis.TotalWords,
		"sentences":  analysis.TotalSentences,
		"level":      ec.CurrentLevel,
	})
}
