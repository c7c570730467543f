package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ellworks/ellflow/flow"
)

// conditional evaluates the configured expression against the assembled
// input, the shared variables, and the student attributes. The scheduler
// routes the true or false port on the result.
func (r runners) conditional(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	condition := node.ConfigString("condition", "")
	if condition == "" {
		return flow.RunnerResult{}, &flow.ExecutionError{
			Kind:    flow.ErrKindRunnerFailure,
			Message: fmt.Sprintf("conditional node %s has no condition", node.ID),
		}
	}

	env := exprEnv(input, ec)
	result, err := expr.Eval(condition, env)
	if err != nil {
		return flow.RunnerResult{}, &flow.ExecutionError{
			Kind:    flow.ErrKindRunnerFailure,
			Message: fmt.Sprintf("evaluate condition %q: %v", condition, err),
		}
	}

	output := input.Clone()
	output["conditionMet"] = truthy(result)
	output["conditionEvaluated"] = condition
	return out(output)
}

// exprEnv assembles the evaluation environment. Input fields shadow
// variables; the student attributes are always present.
func exprEnv(input flow.Input, ec *flow.ExecutionContext) map[string]any {
	env := make(map[string]any, len(input)+len(ec.Variables)+2)
	for k, v := range ec.Variables {
		env[k] = v
	}
	for k, v := range input {
		env[k] = v
	}
	env["currentLevel"] = ec.CurrentLevel
	if s := ec.Student; s != nil {
		env["elpaLevel"] = s.ELPALevel
		env["gradeLevel"] = s.GradeLevel
	}
	return env
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	}
	return true
}

// proficiencyRouter produces a named route from the incoming score or the
// working language level. Routing criteria map route names to minimum
// scores; the highest satisfied threshold wins.
func (r runners) proficiencyRouter(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	score, ok := inputNumber(input, "score")
	if !ok {
		// Without an upstream score the working level maps onto a 0..100
		// scale.
		score = float64(ec.CurrentLevel) * 20
	}

	criteria := routingCriteria(node)
	route := ""
	best := -1.0
	for name, min := range criteria {
		if score >= min && min > best {
			route = name
			best = min
		}
	}
	if route == "" {
		// Lowest-threshold route catches everything below the bands.
		lowest := ""
		lowestMin := 0.0
		first := true
		for name, min := range criteria {
			if first || min < lowestMin {
				lowest, lowestMin = name, min
				first = false
			}
		}
		route = lowest
	}

	output := input.Clone()
	output["score"] = score
	output["route"] = route
	output["criteria"] = criteria
	return out(output)
}

// routingCriteria reads the configured route thresholds, defaulting to the
// mastered / needs-review split.
func routingCriteria(node flow.Node) map[string]float64 {
	criteria := map[string]float64{
		"mastered":     80,
		"needs-review": 0,
	}
	raw, ok := node.Config["routingCriteria"].(map[string]any)
	if !ok {
		return criteria
	}
	parsed := make(map[string]float64, len(raw))
	for name, v := range raw {
		switch n := v.(type) {
		case float64:
			parsed[name] = n
		case int:
			parsed[name] = float64(n)
		}
	}
	if len(parsed) == 0 {
		return criteria
	}
	return parsed
}

// loop counts iterations. The scheduler injects the prior count under
// _loopIteration and re-enters the body until isComplete.
func (r runners) loop(_ context.Context, node flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	maxIterations := node.ConfigInt("maxIterations", flow.DefaultMaxIterations)
	prior := 0
	switch v := input[flow.KeyLoopIteration].(type) {
	case int:
		prior = v
	case float64:
		prior = int(v)
	}
	iteration := prior + 1
	return out(flow.Input{
		"iteration":  iteration,
		"isComplete": iteration >= maxIterations,
	})
}

// merge aggregates the contributions the scheduler collected from live
// in-edges. The _sources entry lists them in edge order.
func (r runners) merge(_ context.Context, node flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	sources, _ := input[flow.KeySources].([]flow.SourceInput)
	strategy := node.ConfigString("mergeStrategy", "concatenate")

	output := input.Clone()
	delete(output, flow.KeySources)

	switch strategy {
	case "aggregate":
		merged := make(map[string]any)
		for _, s := range sources {
			key := s.NodeID
			if s.Port != "" {
				key = s.Port
			}
			merged[key] = map[string]any(s.Output)
		}
		output["merged"] = merged

	case flow.MergeFirstComplete:
		// The scheduler already cancelled the siblings; the single arrived
		// source passes through.
		if len(sources) > 0 {
			output["merged"] = map[string]any(sources[0].Output)
		}

	case "select-best":
		if best, ok := selectBest(sources, node.ConfigString("scoreField", "score")); ok {
			output["merged"] = map[string]any(best.Output)
			break
		}
		fallthrough

	default: // concatenate
		output["merged"] = concatenate(sources)
	}

	output["mergeStrategy"] = strategy
	return out(output)
}

// selectBest picks the source with the highest numeric value in the score
// field. Reports false when no source carries one.
func selectBest(sources []flow.SourceInput, field string) (flow.SourceInput, bool) {
	var best flow.SourceInput
	bestScore := 0.0
	found := false
	for _, s := range sources {
		score, ok := inputNumber(s.Output, field)
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = s, score, true
		}
	}
	return best, found
}

// concatenate joins the textual content of each source in edge order and
// keeps the structured outputs alongside.
func concatenate(sources []flow.SourceInput) map[string]any {
	var texts []string
	outputs := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		if c := inputString(s.Output, "content"); c != "" {
			texts = append(texts, c)
		}
		outputs = append(outputs, map[string]any(s.Output))
	}
	return map[string]any{
		"content": strings.Join(texts, "\n\n"),
		"outputs": outputs,
	}
}
