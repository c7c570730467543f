package runner

import (
	"context"
	"fmt"

	"github.com/ellworks/ellflow/flow"
)

// progressTracker summarises session performance and appends the report to
// the accumulated content.
func (r runners) progressTracker(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	answered, _ := inputNumber(input, "questionsAnswered")
	correct, _ := inputNumber(input, "correctAnswers")
	timeSpent, _ := inputNumber(input, "timeSpent")

	accuracy := 0.0
	if answered > 0 {
		accuracy = correct / answered * 100
	}
	progress := map[string]any{
		"questionsAnswered": int(answered),
		"correctAnswers":    int(correct),
		"accuracy":          accuracy,
		"timeSpentSeconds":  timeSpent,
		"languageLevel":     ec.CurrentLevel,
		"adaptations":       ec.Adaptations,
	}
	report := fmt.Sprintf(
		"Answered %d of %d correctly (%.0f%%) at language level %d.",
		int(correct), int(answered), accuracy, ec.CurrentLevel,
	)
	ec.AppendContent(node.ID, "progress-report", report)

	return out(flow.Input{
		"progress": progress,
		"report":   report,
	})
}

// feedbackGenerator phrases encouragement in three score bands.
func (r runners) feedbackGenerator(_ context.Context, _ flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	score, _ := inputNumber(input, "score")

	var feedback string
	switch {
	case score >= 80:
		feedback = "Excellent work! You really understand this. Keep it up!"
	case score >= 50:
		feedback = "Good effort! You are getting there. Let's practise the tricky parts together."
	default:
		feedback = "Thanks for trying! This is hard, and that is okay. We will go through it step by step."
	}

	output := input.Clone()
	output["feedback"] = feedback
	output["score"] = score
	return out(output)
}

// celebration marks an achievement at the end of a branch.
func (r runners) celebration(_ context.Context, node flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	achieved := true
	if v, ok := input["achieved"].(bool); ok {
		achieved = v
	}
	return out(flow.Input{
		"celebration": map[string]any{
			"type":    node.ConfigString("celebrationType", "confetti"),
			"message": node.ConfigString("message", "Great job today!"),
		},
		"trigger": achieved,
	})
}
