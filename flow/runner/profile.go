package runner

import (
	"context"
	"strings"

	"github.com/ellworks/ellflow/flow"
)

// studentProfile is the usual entry node: it copies the student's key
// attributes from the context into the data flow.
func (r runners) studentProfile(_ context.Context, _ flow.Node, _ flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	output := flow.Input{
		"studentProfile": ec.Student,
		"elpaLevel":      ec.CurrentLevel,
	}
	if s := ec.Student; s != nil {
		output["nativeLanguage"] = s.NativeLanguage
		output["gradeLevel"] = s.GradeLevel
		output["interests"] = s.Interests
	}
	return out(output)
}

// curriculumSelector resolves the subject area and outcomes this workflow
// targets. Grade comes from the student when the config omits it.
func (r runners) curriculumSelector(_ context.Context, node flow.Node, _ flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	grade := ""
	if ec.Student != nil {
		grade = ec.Student.GradeLevel
	}
	var outcomes []string
	if raw, ok := node.Config["specificOutcomes"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				outcomes = append(outcomes, s)
			}
		}
	}
	return out(flow.Input{
		"subjectArea": node.ConfigString("subjectArea", "ela"),
		"strand":      node.ConfigString("strand", ""),
		"outcomes":    outcomes,
		"gradeLevel":  grade,
	})
}

// passthrough forwards the assembled input unchanged. Serves the input
// node and the parallel fan-out marker, whose behaviour lives entirely in
// edge routing.
func (r runners) passthrough(_ context.Context, _ flow.Node, input flow.Input, _ *flow.ExecutionContext) (flow.RunnerResult, error) {
	return out(input.Clone())
}

// output terminates a branch, snapshotting the data that reached it along
// with everything the run accumulated.
func (r runners) output(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	return out(flow.Input{
		"result":      map[string]any(input.Clone()),
		"format":      node.ConfigString("format", "json"),
		"adaptations": ec.Adaptations,
		"finalLevel":  ec.CurrentLevel,
	})
}

// variable writes one named value into the shared variable space. The value
// comes from config, or from the input field named by "fromInput".
func (r runners) variable(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	name := node.ConfigString("name", "")
	if name == "" {
		return out(input.Clone())
	}
	value, ok := node.Config["value"]
	if !ok {
		if from := node.ConfigString("fromInput", ""); from != "" {
			value = input[from]
		}
	}
	ec.SetVariable(name, value)
	output := input.Clone()
	output[name] = value
	return out(output)
}

// promptTemplate renders a template by substituting {placeholders} from the
// input, the variables, and the student profile.
func (r runners) promptTemplate(_ context.Context, node flow.Node, input flow.Input, ec *flow.ExecutionContext) (flow.RunnerResult, error) {
	template := node.ConfigString("template", "")
	rendered := renderTemplate(template, input, ec)
	return out(flow.Input{
		"prompt":   rendered,
		"template": template,
	})
}

func renderTemplate(template string, input flow.Input, ec *flow.ExecutionContext) string {
	rendered := template
	replace := func(key string, value any) {
		placeholder := "{" + key + "}"
		if strings.Contains(rendered, placeholder) {
			rendered = strings.ReplaceAll(rendered, placeholder, stringify(value))
		}
	}
	for k, v := range input {
		replace(k, v)
	}
	for k, v := range ec.Variables {
		replace(k, v)
	}
	if s := ec.Student; s != nil {
		replace("studentName", s.Name)
		replace("gradeLevel", s.GradeLevel)
		replace("nativeLanguage", s.NativeLanguage)
		replace("elpaLevel", ec.CurrentLevel)
	}
	return rendered
}
