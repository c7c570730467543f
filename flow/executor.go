package flow

import (
	"context"
	"sync"
	"time"

	"github.com/ellworks/ellflow/flow/emit"
	"github.com/ellworks/ellflow/flow/stream"
)

// executorConfig collects the options applied by NewExecutor.
type executorConfig struct {
	observer    Observer
	emitter     emit.Emitter
	metrics     *Metrics
	sink        stream.Sink
	nodeTimeout time.Duration
}

// Option configures an Executor.
type Option func(*executorConfig)

// WithObserver attaches a lifecycle observer. Observers run inline on the
// scheduling goroutine and must return quickly.
func WithObserver(o Observer) Option {
	return func(c *executorConfig) { c.observer = o }
}

// WithEmitter attaches a milestone emitter for operational logging and
// tracing. The default is a NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *executorConfig) { c.emitter = e }
}

// WithMetrics attaches Prometheus collectors. Nil metrics record nothing.
func WithMetrics(m *Metrics) Option {
	return func(c *executorConfig) { c.metrics = m }
}

// WithStreamSink attaches a client-facing event stream. A write failure on
// the sink is treated as a client disconnect and cancels the execution.
func WithStreamSink(s stream.Sink) Option {
	return func(c *executorConfig) { c.sink = s }
}

// WithNodeTimeout bounds every runner invocation. Zero disables timeouts.
func WithNodeTimeout(d time.Duration) Option {
	return func(c *executorConfig) { c.nodeTimeout = d }
}

// Executor drives a single workflow execution from start to a terminal
// state, including any pause/resume round-trips in between.
//
// An Executor is single-use: Execute may be called once, and after the
// execution reaches a terminal state the Executor only serves reads. Create
// a new Executor per run. Pause and Cancel are safe to call from any
// goroutine while Execute or Resume is in flight.
//
//	ex := flow.NewExecutor(registry, flow.WithStreamSink(sink))
//	rec, err := ex.Execute(ctx, wf, student)
type Executor struct {
	registry Registry
	config   executorConfig

	// mu guards the sched/exec pointers; runMu serializes the scheduling
	// loop so only one of Execute/Resume drives the queue at a time.
	mu    sync.Mutex
	runMu sync.Mutex
	sched *scheduler
	exec  *WorkflowExecution
}

// NewExecutor creates an executor over the given runner registry.
func NewExecutor(registry Registry, opts ...Option) *Executor {
	ex := &Executor{registry: registry}
	for _, opt := range opts {
		opt(&ex.config)
	}
	return ex
}

// Execute validates the workflow and runs it to completion, failure, or a
// pause point. The returned record is live: it reflects further progress
// made by Resume on the same executor.
//
// A workflow with zero nodes completes immediately with an empty record.
// Structural validation errors are returned without creating an execution.
func (ex *Executor) Execute(ctx context.Context, wf *Workflow, student *StudentProfile) (*WorkflowExecution, error) {
	if err := ex.validateForRun(wf); err != nil {
		return nil, err
	}

	ex.mu.Lock()
	if ex.sched != nil {
		ex.mu.Unlock()
		return nil, ErrExecutionActive
	}
	exec := newWorkflowExecution(wf, student)
	s := newScheduler(wf, ex.registry, exec, &ex.config)
	ex.exec = exec
	ex.sched = s
	ex.mu.Unlock()

	ex.config.metrics.ExecutionStarted()

	ex.runMu.Lock()
	s.run(ctx)
	ex.runMu.Unlock()
	return exec, nil
}

// validateForRun checks structure except the non-empty rule: an empty graph
// is a legal no-op at this level. HTTP-facing callers apply the stricter
// Validate before admission.
func (ex *Executor) validateForRun(wf *Workflow) error {
	if len(wf.Nodes) == 0 {
		return nil
	}
	return wf.Validate()
}

// Resume continues an execution that paused at a human-input node. The
// answer is merged into the paused node's output under "userAnswer" and
// appended to the conversation history, then traversal continues.
//
// Resume also continues an execution suspended by Pause; in that case the
// answer is ignored since no node is awaiting input.
func (ex *Executor) Resume(ctx context.Context, answer string) error {
	ex.mu.Lock()
	s := ex.sched
	ex.mu.Unlock()
	if s == nil {
		return ErrNotPaused
	}

	ex.runMu.Lock()
	defer ex.runMu.Unlock()

	switch s.exec.Status {
	case ExecutionAwaitingInput:
		v := s.awaiting
		if v == nil {
			return ErrNotPaused
		}
		s.awaiting = nil
		s.pauseReq.Store(false)

		output := v.pauseOutput
		if output == nil {
			output = Input{}
		}
		output[KeyUserAnswer] = answer
		v.pauseOutput = nil

		s.ec.AppendMessage(RoleUser, answer, v.node.ID)

		s.exec.Status = ExecutionRunning
		s.metrics.NodeObserved(v.node.Type, NodeCompleted, 0)
		s.completeVisit(v, output)
		if !s.finished {
			s.drain(ctx)
		}
		return nil

	case ExecutionPaused:
		s.pauseReq.Store(false)
		s.exec.Status = ExecutionRunning
		s.drain(ctx)
		return nil

	default:
		return ErrNotPaused
	}
}

// Pause requests suspension at the next node boundary. Nodes already
// running finish; the execution status becomes "paused" once the current
// visit completes.
func (ex *Executor) Pause() {
	ex.mu.Lock()
	s := ex.sched
	ex.mu.Unlock()
	if s != nil {
		s.pauseReq.Store(true)
	}
}

// Cancel aborts the execution cooperatively. It is idempotent and safe to
// call from any goroutine; a running execution stops at the next node
// boundary, a suspended one fails immediately.
func (ex *Executor) Cancel() {
	ex.mu.Lock()
	s := ex.sched
	ex.mu.Unlock()
	if s == nil {
		return
	}
	s.cancelled.Store(true)

	// A suspended execution has no scheduling loop to notice the flag, so
	// terminal bookkeeping happens here once any in-flight drain returns.
	ex.runMu.Lock()
	defer ex.runMu.Unlock()
	switch s.exec.Status {
	case ExecutionAwaitingInput, ExecutionPaused:
		s.finishCancelled()
	}
}

// IsAwaitingInput reports whether the execution is paused at a human-input
// node.
func (ex *Executor) IsAwaitingInput() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.exec != nil && ex.exec.Status == ExecutionAwaitingInput
}

// AwaitingInputNode returns the node the execution is paused on, if any.
func (ex *Executor) AwaitingInputNode() (Node, bool) {
	ex.mu.Lock()
	s := ex.sched
	ex.mu.Unlock()
	if s == nil || s.awaiting == nil {
		return Node{}, false
	}
	return s.awaiting.node, true
}

// Execution returns the execution record, or nil before Execute.
func (ex *Executor) Execution() *WorkflowExecution {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.exec
}
