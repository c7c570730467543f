package flow

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the lifecycle state of a single node visit.
type NodeStatus string

// Node visit states.
const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

// Execution states.
const (
	ExecutionPending       ExecutionStatus = "pending"
	ExecutionRunning       ExecutionStatus = "running"
	ExecutionPaused        ExecutionStatus = "paused"
	ExecutionCompleted     ExecutionStatus = "completed"
	ExecutionFailed        ExecutionStatus = "failed"
	ExecutionAwaitingInput ExecutionStatus = "awaiting-input"
)

// Input is the mapping assembled from predecessor outputs and handed to a
// runner. Scheduler-injected keys are underscore-prefixed (_loopIteration).
type Input map[string]any

// Clone returns a shallow copy. Records freeze their input and output maps
// with it so later visits cannot mutate history.
func (in Input) Clone() Input {
	if in == nil {
		return nil
	}
	out := make(Input, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NodeExecution records one visit to one node. Loop re-entries produce a
// fresh record per iteration.
type NodeExecution struct {
	ID        string     `json:"id"`
	NodeID    string     `json:"nodeId"`
	NodeType  NodeType   `json:"nodeType"`
	Status    NodeStatus `json:"status"`
	StartedAt time.Time  `json:"startedAt,omitempty"`
	EndedAt   time.Time  `json:"endedAt,omitempty"`

	// Input and Output are frozen copies taken at visit boundaries.
	Input  Input `json:"input,omitempty"`
	Output Input `json:"output,omitempty"`

	TokenCount   int    `json:"tokenCount,omitempty"`
	Model        string `json:"model,omitempty"`
	StreamedText string `json:"streamedText,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ExecutionError is the bounded error description attached to a failed
// execution record. Only the kind and message cross the stream boundary.
type ExecutionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Kind != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Message
}

// WorkflowExecution is the record of a single run. It is created by the
// executor, mutated only by the scheduler, and handed to callbacks once a
// terminal state is reached.
type WorkflowExecution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId"`
	StudentID  string          `json:"studentId"`
	Status     ExecutionStatus `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	EndedAt    time.Time       `json:"endedAt,omitempty"`

	// CurrentNode is the node being executed, or the awaited node while the
	// execution is paused for human input.
	CurrentNode string `json:"currentNode,omitempty"`

	// NodeExecutions lists every visit in completion order.
	NodeExecutions []*NodeExecution `json:"nodeExecutions"`

	Context *ExecutionContext `json:"context"`
	Error   *ExecutionError   `json:"error,omitempty"`
}

func newWorkflowExecution(wf *Workflow, student *StudentProfile) *WorkflowExecution {
	studentID := ""
	if student != nil {
		studentID = student.ID
	}
	return &WorkflowExecution{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		StudentID:  studentID,
		Status:     ExecutionPending,
		StartedAt:  time.Now().UTC(),
		Context:    NewExecutionContext(student),
	}
}

func newNodeExecution(node Node, input Input) *NodeExecution {
	return &NodeExecution{
		ID:        uuid.NewString(),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    NodePending,
		Input:     input.Clone(),
		StartedAt: time.Now().UTC(),
	}
}

// completedCount returns the number of node visits in a terminal state.
func (e *WorkflowExecution) completedCount() int {
	n := 0
	for _, rec := range e.NodeExecutions {
		if rec.Status == NodeCompleted || rec.Status == NodeSkipped {
			n++
		}
	}
	return n
}
