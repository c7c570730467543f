package flow

import (
	"time"
)

// StudentProfile describes the learner an execution is personalised for.
// The engine borrows the profile read-only; runners read whatever they need.
type StudentProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name,omitempty"`
	GradeLevel          string   `json:"gradeLevel"`
	NativeLanguage      string   `json:"nativeLanguage"`
	AdditionalLanguages []string `json:"additionalLanguages,omitempty"`

	// ELPALevel is the coarse English-proficiency categorisation, 1
	// (Beginning) through 5 (Proficient).
	ELPALevel int `json:"elpaLevel"`

	LiteracyLevel  string   `json:"literacyLevel,omitempty"`
	NumeracyLevel  string   `json:"numeracyLevel,omitempty"`
	LearningStyles []string `json:"learningStyles,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Accommodations []string `json:"accommodations,omitempty"`
	SchoolID       string   `json:"schoolId,omitempty"`
	TeacherID      string   `json:"teacherId,omitempty"`
}

// Message roles used in the execution conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the execution's conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"nodeId,omitempty"`
}

// ContentFragment is a piece of produced content accumulated during a run.
type ContentFragment struct {
	NodeID  string `json:"nodeId"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// ExecutionContext is the per-run mutable state threaded to every runner.
//
// Ownership: the scheduler owns the context exclusively for the duration of
// the run; because node runners execute one at a time, no locking is needed.
// Callbacks receive it read-only.
//
// Invariants: History is append-only; Variables may be overwritten;
// CurrentLevel always stays within [1, 5].
type ExecutionContext struct {
	Student *StudentProfile `json:"student"`

	// Variables is the shared key/value scratch space written by variable
	// nodes and read by expression evaluation.
	Variables map[string]any `json:"variables"`

	// History is the ordered conversation transcript accumulated across
	// AI-backed runners.
	History []Message `json:"history"`

	// Content accumulates produced fragments (passages, reports, feedback).
	Content []ContentFragment `json:"content"`

	// CurrentLevel is the working language level. It starts at the
	// student's proficiency and may drift as runners observe evidence of
	// success or struggle.
	CurrentLevel int `json:"currentLevel"`

	// Adaptations names the scaffolding techniques applied so far.
	Adaptations []string `json:"adaptations"`

	// emitToken is installed by the scheduler around runner invocations so
	// streaming runners can surface partial tokens without touching the
	// stream manager directly.
	emitToken func(content string)
}

// NewExecutionContext initialises a context from a student profile.
// The working language level starts at the student's proficiency.
func NewExecutionContext(student *StudentProfile) *ExecutionContext {
	level := 3
	if student != nil {
		level = clampLevel(student.ELPALevel)
	}
	return &ExecutionContext{
		Student:      student,
		Variables:    make(map[string]any),
		CurrentLevel: level,
	}
}

// AppendMessage appends one entry to the conversation history.
func (c *ExecutionContext) AppendMessage(role, content, nodeID string) {
	c.History = append(c.History, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

// AppendContent records a produced content fragment.
func (c *ExecutionContext) AppendContent(nodeID, kind, content string) {
	c.Content = append(c.Content, ContentFragment{NodeID: nodeID, Kind: kind, Content: content})
}

// RecordAdaptation notes a scaffolding technique applied during the run.
// Duplicates are collapsed.
func (c *ExecutionContext) RecordAdaptation(name string) {
	for _, a := range c.Adaptations {
		if a == name {
			return
		}
	}
	c.Adaptations = append(c.Adaptations, name)
}

// SetVariable writes a variable. Later writes win.
func (c *ExecutionContext) SetVariable(key string, value any) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	c.Variables[key] = value
}

// AdjustLevel proposes a new working language level. The value is clamped
// to [1, 5]; runners lower it on evidence of struggle and raise it on
// sustained success.
func (c *ExecutionContext) AdjustLevel(level int) {
	c.CurrentLevel = clampLevel(level)
}

// EmitToken forwards a partial AI token to the execution's stream.
// Outside a runner invocation this is a no-op.
func (c *ExecutionContext) EmitToken(content string) {
	if c.emitToken != nil {
		c.emitToken(content)
	}
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}
