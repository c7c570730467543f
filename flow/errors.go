package flow

import "errors"

// Machine-readable error kinds surfaced on failed executions and across the
// stream boundary. Stack traces never cross the boundary; only a bounded
// message and one of these kinds.
const (
	ErrKindInvalidWorkflow = "invalid-workflow"
	ErrKindRateLimited     = "rate-limited"
	ErrKindRunnerFailure   = "runner-failure"
	ErrKindCancelled       = "cancelled"
	ErrKindTimeout         = "timeout"
	ErrKindAIUnavailable   = "ai-unavailable"
)

// ErrCancelled indicates the execution was cancelled by the caller or by a
// client disconnect. Cancellation is cooperative: the flag is checked at
// every node boundary.
var ErrCancelled = errors.New("execution cancelled")

// ErrExecutionActive is returned by Execute when the executor already has an
// in-flight execution. One executor drives exactly one run at a time.
var ErrExecutionActive = errors.New("an execution is already in progress")

// ErrNotPaused is returned by Resume when no human-input node is awaiting
// input.
var ErrNotPaused = errors.New("execution is not awaiting input")
