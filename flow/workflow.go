// Package flow provides the workflow execution engine for ellflow.
//
// A workflow is a directed graph of pedagogical steps authored by a teacher.
// At runtime a student profile is supplied, the graph is traversed in
// data-flow order, and every state change is surfaced through observers and
// an optional client-facing event stream.
package flow

import (
	"fmt"
	"time"
)

// NodeType identifies the kind of pedagogical step a node performs.
//
// The set is closed: the scheduler resolves each type against a runner
// registry, and types without a registered runner are skipped rather than
// failed, so workflows authored against a newer catalogue still execute.
type NodeType string

// The builtin node kinds.
const (
	NodeStudentProfile       NodeType = "student-profile"
	NodeCurriculumSelector   NodeType = "curriculum-selector"
	NodeContentGenerator     NodeType = "content-generator"
	NodeMathProblemGenerator NodeType = "math-problem-generator"
	NodeVocabularyBuilder    NodeType = "vocabulary-builder"
	NodeScaffoldedContent    NodeType = "scaffolded-content"
	NodeL1Bridge             NodeType = "l1-bridge"
	NodeVisualSupport        NodeType = "visual-support"
	NodeComprehensibleInput  NodeType = "comprehensible-input"
	NodeReadingPassage       NodeType = "reading-passage"
	NodeAIModel              NodeType = "ai-model"
	NodePromptTemplate       NodeType = "prompt-template"
	NodeStructuredOutput     NodeType = "structured-output"
	NodeHumanInput           NodeType = "human-input"
	NodeVoiceInput           NodeType = "voice-input"
	NodeComprehensionCheck   NodeType = "comprehension-check"
	NodeMultipleChoice       NodeType = "multiple-choice"
	NodeFreeResponse         NodeType = "free-response"
	NodeOralPractice         NodeType = "oral-practice"
	NodeProficiencyRouter    NodeType = "proficiency-router"
	NodeLoop                 NodeType = "loop"
	NodeMerge                NodeType = "merge"
	NodeParallel             NodeType = "parallel"
	NodeConditional          NodeType = "conditional"
	NodeVariable             NodeType = "variable"
	NodeProgressTracker      NodeType = "progress-tracker"
	NodeFeedbackGenerator    NodeType = "feedback-generator"
	NodeCelebration          NodeType = "celebration"
	NodeSpeakingAssessment   NodeType = "speaking-assessment"
	NodeWordProblemDecoder   NodeType = "word-problem-decoder"
	NodeInput                NodeType = "input"
	NodeOutput               NodeType = "output"
)

// Node is a pure description of a single step in a workflow.
// It never holds runtime state; per-visit state lives in NodeExecution.
type Node struct {
	// ID is unique within the owning workflow.
	ID string `json:"id"`

	// Type selects the runner used to execute this node.
	Type NodeType `json:"type"`

	// Config carries the free-form, per-kind configuration mapping.
	// Runners decode the keys they understand and apply documented defaults.
	Config map[string]any `json:"config,omitempty"`

	// Label is optional display metadata surfaced in stream events.
	Label string `json:"label,omitempty"`
}

// ConfigString reads a string configuration value with a default.
func (n Node) ConfigString(key, def string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ConfigInt reads an integer configuration value with a default.
// JSON decoding produces float64, so both forms are accepted.
func (n Node) ConfigInt(key string, def int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Edge connects two nodes. SourcePort carries the branch label produced by
// routing nodes ("true"/"false" for conditionals, a route name for routers,
// "continue" for loop continuations). Empty ports are unconditional.
type Edge struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourcePort string `json:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty"`
}

// Workflow is a directed graph of learning steps. It is immutable for the
// duration of an execution; the engine borrows it and never mutates it.
type Workflow struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Nodes        []Node    `json:"nodes"`
	Edges        []Edge    `json:"edges"`
	TargetGrades []string  `json:"targetGrades,omitempty"`
	TargetLevels []int     `json:"targetLevels,omitempty"`
	Category     string    `json:"category,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// ValidationIssue describes a single problem found by Validate.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates the issues that make a workflow unexecutable.
type ValidationError struct {
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid workflow"
	}
	return fmt.Sprintf("invalid workflow: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
}

// Validate checks structural invariants: at least one node, unique node IDs,
// and every edge endpoint resolving to an existing node.
//
// Returns a *ValidationError listing every issue found, or nil.
func (w *Workflow) Validate() error {
	var issues []ValidationIssue

	if len(w.Nodes) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "nodes",
			Message: "workflow must contain at least one node",
		})
	}

	seen := make(map[string]bool, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.ID == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("nodes[%d].id", i),
				Message: "node id cannot be empty",
			})
			continue
		}
		if seen[n.ID] {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("nodes[%d].id", i),
				Message: "duplicate node id: " + n.ID,
			})
		}
		seen[n.ID] = true
	}

	for i, e := range w.Edges {
		if !seen[e.Source] {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("edges[%d].source", i),
				Message: "edge source references unknown node: " + e.Source,
			})
		}
		if !seen[e.Target] {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("edges[%d].target", i),
				Message: "edge target references unknown node: " + e.Target,
			})
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Node returns the node with the given ID, if present.
func (w *Workflow) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// edgeRef pairs an edge with its stable position in Workflow.Edges so the
// scheduler can track per-edge liveness and credit.
type edgeRef struct {
	Edge
	idx int
}

// topology is the adjacency index built once per execution.
//
// Structurally a workflow is a DAG; the only legal back-edges are those
// terminating at a loop node, which the scheduler treats as iteration
// re-entry triggers rather than dependencies.
type topology struct {
	nodes    map[string]Node
	outgoing map[string][]edgeRef // keyed by source node ID, in declaration order
	incoming map[string][]edgeRef // keyed by target node ID, in declaration order
	entries  []string             // zero in-degree nodes, in declaration order
	bodies   map[string]map[string]bool
}

func newTopology(w *Workflow) *topology {
	t := &topology{
		nodes:    make(map[string]Node, len(w.Nodes)),
		outgoing: make(map[string][]edgeRef),
		incoming: make(map[string][]edgeRef),
		bodies:   make(map[string]map[string]bool),
	}
	for _, n := range w.Nodes {
		t.nodes[n.ID] = n
	}
	for i, e := range w.Edges {
		ref := edgeRef{Edge: e, idx: i}
		t.outgoing[e.Source] = append(t.outgoing[e.Source], ref)
		t.incoming[e.Target] = append(t.incoming[e.Target], ref)
	}
	for _, n := range w.Nodes {
		// Back-edges into a loop node do not count toward entry discovery:
		// a loop that is also fed by its own body must still be reachable.
		if t.forwardInDegree(n) == 0 {
			t.entries = append(t.entries, n.ID)
		}
	}
	return t
}

// forwardInDegree counts in-edges that represent forward dependencies.
// For loop nodes, edges arriving from the loop's own body subgraph are
// re-entry triggers and are excluded.
func (t *topology) forwardInDegree(n Node) int {
	in := t.incoming[n.ID]
	if n.Type != NodeLoop {
		return len(in)
	}
	body := t.loopBody(n.ID)
	count := 0
	for _, e := range in {
		if !body[e.Source] {
			count++
		}
	}
	return count
}

// isBackEdge reports whether the edge re-enters a loop node from its own
// body subgraph.
func (t *topology) isBackEdge(e edgeRef) bool {
	target, ok := t.nodes[e.Target]
	if !ok || target.Type != NodeLoop {
		return false
	}
	return t.loopBody(e.Target)[e.Source]
}

// loopBody returns the set of nodes reachable from the loop's body edges
// without passing through the loop node itself. Continuation edges
// (source-port "continue") are not part of the body. Results are cached.
func (t *topology) loopBody(loopID string) map[string]bool {
	if body, ok := t.bodies[loopID]; ok {
		return body
	}
	body := make(map[string]bool)
	var stack []string
	for _, e := range t.outgoing[loopID] {
		if e.SourcePort == loopContinuePort {
			continue
		}
		stack = append(stack, e.Target)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == loopID || body[id] {
			continue
		}
		body[id] = true
		for _, e := range t.outgoing[id] {
			stack = append(stack, e.Target)
		}
	}
	t.bodies[loopID] = body
	return body
}

// loopContinuePort labels the edge taken once a loop reports completion.
const loopContinuePort = "continue"
