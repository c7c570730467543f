package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/model"
)

func testContext(level int) *flow.ExecutionContext {
	return flow.NewExecutionContext(&flow.StudentProfile{
		ID:             "s-1",
		Name:           "Amal",
		GradeLevel:     "4",
		NativeLanguage: "Arabic",
		ELPALevel:      level,
		Interests:      []string{"soccer"},
	})
}

func run(t *testing.T, cfg Config, node flow.Node, input flow.Input, ec *flow.ExecutionContext) flow.RunnerResult {
	t.Helper()
	reg := NewRegistry(cfg)
	fn, ok := reg.Resolve(node.Type)
	if !ok {
		t.Fatalf("no runner for %s", node.Type)
	}
	res, err := fn(context.Background(), node, input, ec)
	if err != nil {
		t.Fatalf("runner %s: %v", node.Type, err)
	}
	return res
}

func TestRegistryCoversCatalogue(t *testing.T) {
	reg := NewRegistry(Config{})
	kinds := []flow.NodeType{
		flow.NodeStudentProfile, flow.NodeCurriculumSelector, flow.NodeInput,
		flow.NodeOutput, flow.NodeVariable, flow.NodePromptTemplate,
		flow.NodeContentGenerator, flow.NodeMathProblemGenerator,
		flow.NodeReadingPassage, flow.NodeComprehensibleInput,
		flow.NodeVisualSupport, flow.NodeAIModel, flow.NodeStructuredOutput,
		flow.NodeVocabularyBuilder, flow.NodeScaffoldedContent,
		flow.NodeL1Bridge, flow.NodeWordProblemDecoder, flow.NodeHumanInput,
		flow.NodeVoiceInput, flow.NodeComprehensionCheck,
		flow.NodeMultipleChoice, flow.NodeFreeResponse, flow.NodeOralPractice,
		flow.NodeSpeakingAssessment, flow.NodeConditional,
		flow.NodeProficiencyRouter, flow.NodeLoop, flow.NodeMerge,
		flow.NodeParallel, flow.NodeProgressTracker,
		flow.NodeFeedbackGenerator, flow.NodeCelebration,
	}
	for _, k := range kinds {
		if _, ok := reg.Resolve(k); !ok {
			t.Errorf("no runner registered for %s", k)
		}
	}
}

func TestStudentProfile(t *testing.T) {
	ec := testContext(2)
	res := run(t, Config{}, flow.Node{ID: "p", Type: flow.NodeStudentProfile}, flow.Input{}, ec)

	if res.Output["elpaLevel"] != 2 {
		t.Errorf("elpaLevel = %v, want 2", res.Output["elpaLevel"])
	}
	if res.Output["nativeLanguage"] != "Arabic" {
		t.Errorf("nativeLanguage = %v, want Arabic", res.Output["nativeLanguage"])
	}
	if res.Output["gradeLevel"] != "4" {
		t.Errorf("gradeLevel = %v, want 4", res.Output["gradeLevel"])
	}
}

func TestVariable(t *testing.T) {
	t.Run("from config", func(t *testing.T) {
		ec := testContext(3)
		node := flow.Node{ID: "v", Type: flow.NodeVariable, Config: map[string]any{
			"name": "attempts", "value": 3,
		}}
		res := run(t, Config{}, node, flow.Input{}, ec)
		if ec.Variables["attempts"] != 3 {
			t.Errorf("variable not set: %v", ec.Variables)
		}
		if res.Output["attempts"] != 3 {
			t.Errorf("output missing variable: %v", res.Output)
		}
	})

	t.Run("from input", func(t *testing.T) {
		ec := testContext(3)
		node := flow.Node{ID: "v", Type: flow.NodeVariable, Config: map[string]any{
			"name": "lastScore", "fromInput": "score",
		}}
		run(t, Config{}, node, flow.Input{"score": 85}, ec)
		if ec.Variables["lastScore"] != 85 {
			t.Errorf("variable = %v, want 85", ec.Variables["lastScore"])
		}
	})
}

func TestPromptTemplate(t *testing.T) {
	ec := testContext(3)
	ec.SetVariable("subject", "science")
	node := flow.Node{ID: "t", Type: flow.NodePromptTemplate, Config: map[string]any{
		"template": "Write about {topic} for {studentName}, a grade {gradeLevel} {subject} student.",
	}}
	res := run(t, Config{}, node, flow.Input{"topic": "rain"}, ec)

	want := "Write about rain for Amal, a grade 4 science student."
	if res.Output["prompt"] != want {
		t.Errorf("prompt = %q, want %q", res.Output["prompt"], want)
	}
}

func TestContentGeneratorOffline(t *testing.T) {
	ec := testContext(2)
	node := flow.Node{ID: "c", Type: flow.NodeContentGenerator, Config: map[string]any{
		"topic": "the water cycle",
	}}
	res := run(t, Config{}, node, flow.Input{}, ec)

	content, _ := res.Output["content"].(string)
	if content == "" {
		t.Fatal("no fallback content produced")
	}
	if res.Streamed {
		t.Error("offline content marked as streamed")
	}
	if lvl, ok := res.Output["readabilityLevel"].(int); !ok || lvl < 1 || lvl > 5 {
		t.Errorf("readabilityLevel = %v, want within [1, 5]", res.Output["readabilityLevel"])
	}
	if len(ec.Content) != 1 {
		t.Errorf("content fragments = %d, want 1", len(ec.Content))
	}
}

func TestContentGeneratorWithModel(t *testing.T) {
	gen := model.NewMockGenerator("The water cycle moves water around the planet.")
	ec := testContext(3)
	node := flow.Node{ID: "c", Type: flow.NodeContentGenerator, Config: map[string]any{
		"topic": "the water cycle",
	}}
	res := run(t, Config{Generator: gen}, node, flow.Input{}, ec)

	if res.Output["content"] != "The water cycle moves water around the planet." {
		t.Errorf("content = %v", res.Output["content"])
	}
	if !res.Streamed {
		t.Error("generated content not marked streamed")
	}
	if res.Output["model"] != "mock" {
		t.Errorf("model = %v, want mock", res.Output["model"])
	}
	// Prompt and reply land in the conversation history.
	if len(ec.History) != 2 {
		t.Fatalf("history = %d entries, want 2", len(ec.History))
	}
	if ec.History[1].Role != flow.RoleAssistant {
		t.Errorf("history[1].Role = %s, want assistant", ec.History[1].Role)
	}
}

func TestContentGeneratorModelFailure(t *testing.T) {
	gen := model.NewMockGenerator().FailWith(errors.New("quota exceeded"))
	reg := NewRegistry(Config{Generator: gen})
	fn, _ := reg.Resolve(flow.NodeContentGenerator)

	_, err := fn(context.Background(), flow.Node{ID: "c", Type: flow.NodeContentGenerator}, flow.Input{}, testContext(3))
	var execErr *flow.ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != flow.ErrKindAIUnavailable {
		t.Fatalf("err = %v, want ai-unavailable", err)
	}
}

func TestComprehensibleInput(t *testing.T) {
	ec := testContext(1)
	long := "The precipitation phenomenon occurs when atmospheric water vapour condenses into droplets that eventually become too heavy to remain suspended in the air."
	res := run(t, Config{}, flow.Node{ID: "ci", Type: flow.NodeComprehensibleInput}, flow.Input{"content": long}, ec)

	simplified, _ := res.Output["content"].(string)
	if simplified == "" || len(simplified) >= len(long) {
		t.Errorf("fallback did not shorten: %d -> %d chars", len(long), len(simplified))
	}
	if res.Output["originalText"] != long {
		t.Error("original text not preserved")
	}
	if len(ec.Adaptations) == 0 || ec.Adaptations[0] != "simplified-text" {
		t.Errorf("adaptations = %v, want simplified-text", ec.Adaptations)
	}
}

func TestVocabularyBuilder(t *testing.T) {
	t.Run("offline fallback", func(t *testing.T) {
		ec := testContext(2)
		res := run(t, Config{}, flow.Node{ID: "v", Type: flow.NodeVocabularyBuilder},
			flow.Input{"content": "Evaporation happens when sunshine warms the surface water in lakes and oceans."}, ec)

		vocab, _ := res.Output["vocabulary"].([]map[string]any)
		if len(vocab) == 0 || len(vocab) > defaultMaxVocabulary {
			t.Fatalf("vocabulary size = %d, want 1..%d", len(vocab), defaultMaxVocabulary)
		}
		for _, entry := range vocab {
			if entry["word"] == "" {
				t.Errorf("empty word entry: %v", entry)
			}
		}
	})

	t.Run("structured generator", func(t *testing.T) {
		gen := model.NewMockGenerator().QueueObject(map[string]any{
			"words": []any{
				map[string]any{"word": "evaporation", "definition": "water turning to gas", "l1Translation": "تبخر"},
			},
		})
		ec := testContext(2)
		res := run(t, Config{Generator: gen}, flow.Node{ID: "v", Type: flow.NodeVocabularyBuilder},
			flow.Input{"content": "Evaporation happens."}, ec)

		vocab, _ := res.Output["vocabulary"].([]map[string]any)
		if len(vocab) != 1 || vocab[0]["word"] != "evaporation" {
			t.Errorf("vocabulary = %v", vocab)
		}
	})
}

func TestScaffoldedContentSupports(t *testing.T) {
	tests := []struct {
		level    int
		supports int
	}{
		{1, 4},
		{3, 2},
		{5, 1},
	}
	for _, tt := range tests {
		ec := testContext(tt.level)
		res := run(t, Config{}, flow.Node{ID: "s", Type: flow.NodeScaffoldedContent},
			flow.Input{"content": "Plants need light.", "topic": "plants"}, ec)
		supports, _ := res.Output["supports"].([]string)
		if len(supports) != tt.supports {
			t.Errorf("level %d: supports = %v, want %d entries", tt.level, supports, tt.supports)
		}
	}
}

func TestHumanInputPauses(t *testing.T) {
	reg := NewRegistry(Config{})
	fn, _ := reg.Resolve(flow.NodeHumanInput)
	res, err := fn(context.Background(),
		flow.Node{ID: "h", Type: flow.NodeHumanInput, Config: map[string]any{"prompt": "How many?"}},
		flow.Input{}, testContext(3))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Pause {
		t.Error("human-input did not request a pause")
	}
	if res.Output["prompt"] != "How many?" {
		t.Errorf("prompt = %v", res.Output["prompt"])
	}
	if res.Output["awaiting"] != true {
		t.Error("awaiting flag not set")
	}
}

func TestSpeakingAssessment(t *testing.T) {
	t.Run("strong answer raises level", func(t *testing.T) {
		ec := testContext(2)
		res := run(t, Config{}, flow.Node{ID: "sa", Type: flow.NodeSpeakingAssessment},
			flow.Input{"userAnswer": "The plant grows in the sun. It needs water every day. I water it after school."}, ec)
		score := res.Output["score"].(int)
		if score < 80 {
			t.Errorf("score = %d, want >= 80", score)
		}
		if ec.CurrentLevel != 3 {
			t.Errorf("level = %d, want raised to 3", ec.CurrentLevel)
		}
	})

	t.Run("empty answer lowers level", func(t *testing.T) {
		ec := testContext(3)
		res := run(t, Config{}, flow.Node{ID: "sa", Type: flow.NodeSpeakingAssessment}, flow.Input{}, ec)
		if res.Output["score"].(int) != 0 {
			t.Errorf("score = %v, want 0", res.Output["score"])
		}
		if ec.CurrentLevel != 2 {
			t.Errorf("level = %d, want lowered to 2", ec.CurrentLevel)
		}
	})
}

func TestConditional(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		input     flow.Input
		want      bool
	}{
		{"score passes", "score >= 70", flow.Input{"score": 85}, true},
		{"score fails", "score >= 70", flow.Input{"score": 42}, false},
		{"string compare", `userAnswer == "8"`, flow.Input{"userAnswer": "8"}, true},
		{"student attribute", "elpaLevel < 3", flow.Input{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := testContext(2)
			node := flow.Node{ID: "c", Type: flow.NodeConditional, Config: map[string]any{"condition": tt.condition}}
			res := run(t, Config{}, node, tt.input, ec)
			if res.Output["conditionMet"] != tt.want {
				t.Errorf("conditionMet = %v, want %v", res.Output["conditionMet"], tt.want)
			}
		})
	}

	t.Run("missing condition fails", func(t *testing.T) {
		reg := NewRegistry(Config{})
		fn, _ := reg.Resolve(flow.NodeConditional)
		_, err := fn(context.Background(), flow.Node{ID: "c", Type: flow.NodeConditional}, flow.Input{}, testContext(3))
		var execErr *flow.ExecutionError
		if !errors.As(err, &execErr) || execErr.Kind != flow.ErrKindRunnerFailure {
			t.Fatalf("err = %v, want runner-failure", err)
		}
	})

	t.Run("variables visible", func(t *testing.T) {
		ec := testContext(3)
		ec.SetVariable("attempts", 2)
		node := flow.Node{ID: "c", Type: flow.NodeConditional, Config: map[string]any{"condition": "attempts < 3"}}
		res := run(t, Config{}, node, flow.Input{}, ec)
		if res.Output["conditionMet"] != true {
			t.Error("variable not visible to expression")
		}
	})
}

func TestProficiencyRouter(t *testing.T) {
	t.Run("default criteria", func(t *testing.T) {
		ec := testContext(3)
		res := run(t, Config{}, flow.Node{ID: "r", Type: flow.NodeProficiencyRouter}, flow.Input{"score": 92}, ec)
		if res.Output["route"] != "mastered" {
			t.Errorf("route = %v, want mastered", res.Output["route"])
		}
	})

	t.Run("below top band", func(t *testing.T) {
		ec := testContext(3)
		res := run(t, Config{}, flow.Node{ID: "r", Type: flow.NodeProficiencyRouter}, flow.Input{"score": 40}, ec)
		if res.Output["route"] != "needs-review" {
			t.Errorf("route = %v, want needs-review", res.Output["route"])
		}
	})

	t.Run("custom criteria", func(t *testing.T) {
		node := flow.Node{ID: "r", Type: flow.NodeProficiencyRouter, Config: map[string]any{
			"routingCriteria": map[string]any{"advanced": 90, "standard": 60, "support": 0},
		}}
		ec := testContext(3)
		res := run(t, Config{}, node, flow.Input{"score": 75}, ec)
		if res.Output["route"] != "standard" {
			t.Errorf("route = %v, want standard", res.Output["route"])
		}
	})

	t.Run("no score uses working level", func(t *testing.T) {
		ec := testContext(5) // level 5 -> implied score 100
		res := run(t, Config{}, flow.Node{ID: "r", Type: flow.NodeProficiencyRouter}, flow.Input{}, ec)
		if res.Output["route"] != "mastered" {
			t.Errorf("route = %v, want mastered", res.Output["route"])
		}
	})
}

func TestLoopCounting(t *testing.T) {
	node := flow.Node{ID: "l", Type: flow.NodeLoop, Config: map[string]any{"maxIterations": 2}}
	ec := testContext(3)

	first := run(t, Config{}, node, flow.Input{}, ec)
	if first.Output["iteration"] != 1 || first.Output["isComplete"] != false {
		t.Errorf("first visit = %v", first.Output)
	}

	second := run(t, Config{}, node, flow.Input{flow.KeyLoopIteration: 1}, ec)
	if second.Output["iteration"] != 2 || second.Output["isComplete"] != true {
		t.Errorf("second visit = %v", second.Output)
	}
}

func TestMergeStrategies(t *testing.T) {
	sources := []flow.SourceInput{
		{NodeID: "a", Output: flow.Input{"content": "First part.", "score": 60}},
		{NodeID: "b", Port: "alt", Output: flow.Input{"content": "Second part.", "score": 90}},
	}

	t.Run("concatenate", func(t *testing.T) {
		ec := testContext(3)
		res := run(t, Config{}, flow.Node{ID: "m", Type: flow.NodeMerge},
			flow.Input{flow.KeySources: sources}, ec)
		merged := res.Output["merged"].(map[string]any)
		if merged["content"] != "First part.\n\nSecond part." {
			t.Errorf("content = %q", merged["content"])
		}
		if _, present := res.Output[flow.KeySources]; present {
			t.Error("internal sources key leaked into output")
		}
	})

	t.Run("aggregate", func(t *testing.T) {
		ec := testContext(3)
		node := flow.Node{ID: "m", Type: flow.NodeMerge, Config: map[string]any{"mergeStrategy": "aggregate"}}
		res := run(t, Config{}, node, flow.Input{flow.KeySources: sources}, ec)
		merged := res.Output["merged"].(map[string]any)
		if _, ok := merged["a"]; !ok {
			t.Error("aggregate missing node-keyed entry")
		}
		if _, ok := merged["alt"]; !ok {
			t.Error("aggregate did not prefer the port key")
		}
	})

	t.Run("select-best", func(t *testing.T) {
		ec := testContext(3)
		node := flow.Node{ID: "m", Type: flow.NodeMerge, Config: map[string]any{"mergeStrategy": "select-best"}}
		res := run(t, Config{}, node, flow.Input{flow.KeySources: sources}, ec)
		merged := res.Output["merged"].(map[string]any)
		if merged["score"] != 90 {
			t.Errorf("select-best picked %v, want the score-90 source", merged["score"])
		}
	})

	t.Run("select-best without scores concatenates", func(t *testing.T) {
		plain := []flow.SourceInput{
			{NodeID: "a", Output: flow.Input{"content": "One."}},
			{NodeID: "b", Output: flow.Input{"content": "Two."}},
		}
		ec := testContext(3)
		node := flow.Node{ID: "m", Type: flow.NodeMerge, Config: map[string]any{"mergeStrategy": "select-best"}}
		res := run(t, Config{}, node, flow.Input{flow.KeySources: plain}, ec)
		merged := res.Output["merged"].(map[string]any)
		if merged["content"] != "One.\n\nTwo." {
			t.Errorf("fallback content = %q", merged["content"])
		}
	})
}

func TestFeedbackBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, "Excellent"},
		{65, "Good effort"},
		{20, "Thanks for trying"},
	}
	for _, tt := range tests {
		ec := testContext(3)
		res := run(t, Config{}, flow.Node{ID: "f", Type: flow.NodeFeedbackGenerator},
			flow.Input{"score": tt.score}, ec)
		feedback := res.Output["feedback"].(string)
		if len(feedback) == 0 || feedback[:len(tt.want)] != tt.want {
			t.Errorf("score %.0f: feedback = %q, want prefix %q", tt.score, feedback, tt.want)
		}
	}
}

func TestProgressTracker(t *testing.T) {
	ec := testContext(3)
	res := run(t, Config{}, flow.Node{ID: "pt", Type: flow.NodeProgressTracker},
		flow.Input{"questionsAnswered": 5, "correctAnswers": 4}, ec)

	progress := res.Output["progress"].(map[string]any)
	if progress["accuracy"] != 80.0 {
		t.Errorf("accuracy = %v, want 80", progress["accuracy"])
	}
	if len(ec.Content) != 1 || ec.Content[0].Kind != "progress-report" {
		t.Errorf("content = %v, want one progress-report", ec.Content)
	}
}

func TestCelebration(t *testing.T) {
	ec := testContext(3)
	node := flow.Node{ID: "done", Type: flow.NodeCelebration, Config: map[string]any{"message": "You did it!"}}
	res := run(t, Config{}, node, flow.Input{}, ec)

	celebration := res.Output["celebration"].(map[string]any)
	if celebration["message"] != "You did it!" {
		t.Errorf("message = %v", celebration["message"])
	}
	if res.Output["trigger"] != true {
		t.Error("trigger defaults to true when nothing upstream set achieved")
	}

	res = run(t, Config{}, node, flow.Input{"achieved": false}, ec)
	if res.Output["trigger"] != false {
		t.Error("achieved=false did not suppress the trigger")
	}
}

func TestOutputNode(t *testing.T) {
	ec := testContext(2)
	ec.RecordAdaptation("word-bank")
	res := run(t, Config{}, flow.Node{ID: "out", Type: flow.NodeOutput},
		flow.Input{"content": "done"}, ec)

	result := res.Output["result"].(map[string]any)
	if result["content"] != "done" {
		t.Errorf("result = %v", result)
	}
	adaptations := res.Output["adaptations"].([]string)
	if len(adaptations) != 1 || adaptations[0] != "word-bank" {
		t.Errorf("adaptations = %v", adaptations)
	}
	if res.Output["finalLevel"] != 2 {
		t.Errorf("finalLevel = %v, want 2", res.Output["finalLevel"])
	}
}
