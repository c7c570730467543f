package flow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ellworks/ellflow/flow/emit"
	"github.com/ellworks/ellflow/flow/stream"
)

// Keys the scheduler injects into runner inputs.
const (
	// KeyLoopIteration carries the completed iteration count into a loop
	// body and back into the loop node on re-entry.
	KeyLoopIteration = "_loopIteration"

	// KeySources carries the ordered per-predecessor inputs handed to merge
	// nodes: a []SourceInput in edge order.
	KeySources = "_sources"

	// KeyUserAnswer is added to a paused node's output by Resume.
	KeyUserAnswer = "userAnswer"
)

// SourceInput is one predecessor contribution delivered to a merge node.
type SourceInput struct {
	NodeID string `json:"nodeId"`
	Port   string `json:"port,omitempty"`
	Output Input  `json:"output"`
}

// visit is one scheduled occurrence of a node. Loop re-entries create new
// visits (and therefore new records).
type visit struct {
	node  Node
	input Input
	rec   *NodeExecution

	// started marks that node-start was already announced; a visit that was
	// pushed back by a mid-batch pause keeps its record and events.
	started bool

	// pauseOutput holds the runner output of a paused node until Resume
	// augments it with the user's answer.
	pauseOutput Input
}

// scheduler drives one execution over a workflow graph.
//
// Execution is cooperative and single-threaded: exactly one goroutine pops
// the ready queue and invokes runners one at a time, which makes every
// context mutation serialisable without locks. Cancellation and pause are
// flags checked at node boundaries.
type scheduler struct {
	wf       *Workflow
	topo     *topology
	registry Registry
	exec     *WorkflowExecution
	ec       *ExecutionContext

	str      *stream.Stream
	observer Observer
	emitter  emit.Emitter
	metrics  *Metrics

	nodeTimeout time.Duration

	cancelled atomic.Bool
	pauseReq  atomic.Bool

	queue     []*visit
	enqueued  map[string]bool
	done      map[string]bool
	unreached map[string]bool
	credited  map[int]bool // edge idx -> output delivered
	dead      map[int]bool // edge idx -> branch not taken
	outputs   map[string]Input
	inject    map[string]Input // scheduler-injected keys for next visit

	loopIter map[string]int
	loopWait map[string]map[string]bool // loop ID -> body back-edge sources pending

	awaiting *visit
	emitSeq  int
	finished bool
}

func newScheduler(wf *Workflow, registry Registry, exec *WorkflowExecution, opts *executorConfig) *scheduler {
	s := &scheduler{
		wf:          wf,
		topo:        newTopology(wf),
		registry:    registry,
		exec:        exec,
		ec:          exec.Context,
		observer:    opts.observer,
		emitter:     opts.emitter,
		metrics:     opts.metrics,
		nodeTimeout: opts.nodeTimeout,
		enqueued:    make(map[string]bool),
		done:        make(map[string]bool),
		unreached:   make(map[string]bool),
		credited:    make(map[int]bool),
		dead:        make(map[int]bool),
		outputs:     make(map[string]Input),
		inject:      make(map[string]Input),
		loopIter:    make(map[string]int),
		loopWait:    make(map[string]map[string]bool),
	}
	if s.observer == nil {
		s.observer = BaseObserver{}
	}
	if s.emitter == nil {
		s.emitter = emit.NewNullEmitter()
	}
	if opts.sink != nil {
		s.str = stream.New(opts.sink)
		s.str.OnAbort(func() {
			// Client went away: stop scheduling, silently.
			s.cancelled.Store(true)
		})
	}
	return s
}

// run drives the execution until a terminal state, a pause, or a requested
// suspension. It is called once by Execute and again by Resume.
func (s *scheduler) run(ctx context.Context) {
	if s.exec.Status == ExecutionPending {
		s.exec.Status = ExecutionRunning
		if len(s.topo.entries) == 0 {
			// No entry nodes: either an empty workflow or a pure cycle.
			// Both complete immediately with an empty record.
			s.finishCompleted()
			return
		}
		for _, id := range s.topo.entries {
			s.enqueue(id, Input{})
		}
	}
	s.drain(ctx)
}

// drain processes the ready queue in FIFO ticks. All visits ready at the
// start of a tick are announced before any of them runs, preserving the
// parallel appearance of fan-out while keeping execution single-threaded.
func (s *scheduler) drain(ctx context.Context) {
	for len(s.queue) > 0 {
		if s.isCancelled(ctx) {
			s.finishCancelled()
			return
		}
		if s.pauseReq.Load() {
			s.exec.Status = ExecutionPaused
			return
		}

		batch := s.queue
		s.queue = nil
		for _, v := range batch {
			if !v.started {
				s.announce(v)
			}
		}

		for i, v := range batch {
			if s.isCancelled(ctx) {
				s.markSkipped(batch[i:])
				s.finishCancelled()
				return
			}
			switch s.runVisit(ctx, v) {
			case visitFailed:
				s.markSkipped(batch[i+1:])
				return // runVisit already reached a terminal state
			case visitPaused:
				// Keep the rest of the batch at the queue front; it runs
				// first on resume.
				s.queue = append(batch[i+1:], s.queue...)
				return
			}
		}
	}
	s.finishCompleted()
}

type visitOutcome int

const (
	visitDone visitOutcome = iota
	visitFailed
	visitPaused
)

// runVisit invokes the runner for one visit and translates its result.
func (s *scheduler) runVisit(ctx context.Context, v *visit) visitOutcome {
	fn, ok := s.registry.Resolve(v.node.Type)
	if !ok {
		// Unknown node type: skip, propagating inputs unchanged.
		s.skipVisit(v)
		return visitDone
	}

	v.rec.Status = NodeRunning
	s.exec.CurrentNode = v.node.ID

	s.ec.emitToken = func(content string) {
		v.rec.StreamedText += content
		s.publish(stream.Event{
			Type:    stream.EventStreamToken,
			NodeID:  v.node.ID,
			Payload: map[string]any{"nodeId": v.node.ID, "content": content},
		})
		s.observer.OnStreamToken(v.node.ID, content)
	}
	started := time.Now()
	result, err := invokeWithTimeout(ctx, fn, v.node, v.input, s.ec, s.nodeTimeout)
	elapsed := time.Since(started)
	s.ec.emitToken = nil

	if err != nil {
		s.failVisit(v, err, elapsed)
		return visitFailed
	}

	if result.Pause {
		v.pauseOutput = result.Output
		s.awaiting = v
		s.exec.Status = ExecutionAwaitingInput
		s.exec.CurrentNode = v.node.ID
		return visitPaused
	}

	s.metrics.NodeObserved(v.node.Type, NodeCompleted, elapsed)
	s.completeVisit(v, result.Output)
	return visitDone
}

// announce emits node-start for a visit about to run in this tick.
func (s *scheduler) announce(v *visit) {
	v.started = true
	s.exec.NodeExecutions = append(s.exec.NodeExecutions, v.rec)
	s.publish(stream.Event{
		Type:   stream.EventNodeStart,
		NodeID: v.node.ID,
		Payload: map[string]any{
			"nodeId":   v.node.ID,
			"nodeType": string(v.node.Type),
			"label":    v.node.Label,
		},
	})
	s.emitSeq++
	s.emitter.Emit(emit.Event{
		ExecutionID: s.exec.ID,
		Seq:         s.emitSeq,
		NodeID:      v.node.ID,
		Msg:         "node_start",
		Meta:        map[string]any{"node_type": string(v.node.Type)},
	})
	s.observer.OnNodeStart(v.node.ID, v.node)
}

// completeVisit finalises a successful visit and schedules successors.
func (s *scheduler) completeVisit(v *visit, output Input) {
	if output == nil {
		output = Input{}
	}
	v.rec.Status = NodeCompleted
	v.rec.EndedAt = time.Now().UTC()
	v.rec.Output = output.Clone()

	s.outputs[v.node.ID] = output
	s.done[v.node.ID] = true

	s.publish(stream.Event{
		Type:    stream.EventNodeComplete,
		NodeID:  v.node.ID,
		Payload: map[string]any{"nodeId": v.node.ID, "output": map[string]any(output)},
	})
	s.emitSeq++
	s.emitter.Emit(emit.Event{
		ExecutionID: s.exec.ID,
		Seq:         s.emitSeq,
		NodeID:      v.node.ID,
		Msg:         "node_complete",
		Meta:        map[string]any{"node_type": string(v.node.Type)},
	})
	s.observer.OnNodeComplete(v.node.ID, output)
	s.progress()

	s.route(v.node, output)
	s.maybeReenterLoops(v.node.ID)
}

// skipVisit records a visit whose node type has no registered runner.
// The node's inputs propagate as its output so downstream nodes still see
// coherent data.
func (s *scheduler) skipVisit(v *visit) {
	v.rec.Status = NodeSkipped
	v.rec.EndedAt = time.Now().UTC()
	v.rec.Output = v.input.Clone()

	s.outputs[v.node.ID] = v.input
	s.done[v.node.ID] = true
	s.metrics.NodeObserved(v.node.Type, NodeSkipped, 0)

	s.publish(stream.Event{
		Type:    stream.EventNodeComplete,
		NodeID:  v.node.ID,
		Payload: map[string]any{"nodeId": v.node.ID, "output": map[string]any(v.input), "skipped": true},
	})
	s.observer.OnNodeComplete(v.node.ID, v.input)
	s.progress()

	for _, e := range s.topo.outgoing[v.node.ID] {
		s.credit(e, nil)
	}
	s.maybeReenterLoops(v.node.ID)
}

// failVisit marks the node failed and terminates the execution.
func (s *scheduler) failVisit(v *visit, err error, elapsed time.Duration) {
	v.rec.Status = NodeFailed
	v.rec.EndedAt = time.Now().UTC()
	v.rec.Error = err.Error()
	s.metrics.NodeObserved(v.node.Type, NodeFailed, elapsed)

	s.publish(stream.Event{
		Type:    stream.EventNodeError,
		NodeID:  v.node.ID,
		Payload: map[string]any{"nodeId": v.node.ID, "message": err.Error()},
	})
	s.emitSeq++
	s.emitter.Emit(emit.Event{
		ExecutionID: s.exec.ID,
		Seq:         s.emitSeq,
		NodeID:      v.node.ID,
		Msg:         "node_error",
		Meta:        map[string]any{"error": err.Error()},
	})
	s.observer.OnNodeError(v.node.ID, err)

	execErr, ok := err.(*ExecutionError)
	if !ok {
		execErr = &ExecutionError{Kind: ErrKindRunnerFailure, Message: err.Error()}
	}
	s.finishFailed(execErr)
}

// markSkipped finalises batch members that were announced but never ran
// because an earlier member terminated the execution.
func (s *scheduler) markSkipped(rest []*visit) {
	for _, v := range rest {
		if v.rec.Status == NodePending || v.rec.Status == NodeRunning {
			v.rec.Status = NodeSkipped
			v.rec.EndedAt = time.Now().UTC()
		}
	}
}

// route credits or kills outgoing edges according to the node's semantics.
func (s *scheduler) route(node Node, output Input) {
	out := s.topo.outgoing[node.ID]
	switch node.Type {
	case NodeConditional:
		chosen := "false"
		if met, ok := output["conditionMet"].(bool); ok && met {
			chosen = "true"
		}
		for _, e := range out {
			if e.SourcePort == "" || e.SourcePort == chosen {
				s.credit(e, nil)
			} else {
				s.kill(e)
			}
		}

	case NodeProficiencyRouter:
		route, _ := output["route"].(string)
		matched := false
		for _, e := range out {
			if e.SourcePort == route {
				matched = true
			}
		}
		for _, e := range out {
			switch {
			case e.SourcePort == route:
				s.credit(e, nil)
			case !matched && e.SourcePort == "":
				// No port matches the produced route: unlabelled edges act
				// as the default branch.
				s.credit(e, nil)
			default:
				s.kill(e)
			}
		}

	case NodeLoop:
		s.routeLoop(node, output, out)

	default:
		for _, e := range out {
			s.credit(e, nil)
		}
	}
}

// routeLoop routes a loop visit. While incomplete, body edges are credited
// with the iteration injected and the continuation is withheld; the loop
// node re-enters once every body node holding a back-edge has completed.
// On completion only the continuation edges fire.
func (s *scheduler) routeLoop(node Node, output Input, out []edgeRef) {
	iteration := intFrom(output["iteration"])
	complete, _ := output["isComplete"].(bool)
	s.loopIter[node.ID] = iteration

	if complete {
		for _, e := range out {
			if e.SourcePort == loopContinuePort {
				s.credit(e, nil)
			} else {
				s.kill(e)
			}
		}
		return
	}

	bodyEdges := 0
	for _, e := range out {
		if e.SourcePort == loopContinuePort {
			continue
		}
		bodyEdges++
		s.credit(e, Input{KeyLoopIteration: iteration})
	}

	if bodyEdges == 0 {
		// Bodiless loop: re-enter immediately.
		s.reenterLoop(node.ID)
		return
	}

	// Arm the re-entry trigger: the loop comes back once every body node
	// with an edge returning to it has completed this iteration.
	wait := make(map[string]bool)
	body := s.topo.loopBody(node.ID)
	for _, e := range s.topo.incoming[node.ID] {
		if body[e.Source] {
			wait[e.Source] = true
		}
	}
	if len(wait) == 0 {
		// Body never returns to the loop; treat the body as fire-and-forget
		// and re-enter once, bounded by maxIterations as usual.
		s.reenterLoop(node.ID)
		return
	}
	s.loopWait[node.ID] = wait
}

// maybeReenterLoops updates pending loop triggers after a node completes.
func (s *scheduler) maybeReenterLoops(completedID string) {
	for loopID, wait := range s.loopWait {
		if !wait[completedID] {
			continue
		}
		delete(wait, completedID)
		if len(wait) == 0 {
			delete(s.loopWait, loopID)
			s.reenterLoop(loopID)
		}
	}
}

// reenterLoop resets the loop body's traversal state and queues a fresh
// visit of the loop node carrying the completed iteration count.
func (s *scheduler) reenterLoop(loopID string) {
	node, ok := s.topo.nodes[loopID]
	if !ok {
		return
	}
	maxIterations := node.ConfigInt("maxIterations", DefaultMaxIterations)
	if s.loopIter[loopID] >= maxIterations {
		// Hard ceiling regardless of what the runner reported.
		return
	}

	body := s.topo.loopBody(loopID)
	for id := range body {
		delete(s.done, id)
		delete(s.enqueued, id)
		delete(s.unreached, id)
		for _, e := range s.topo.outgoing[id] {
			delete(s.credited, e.idx)
			delete(s.dead, e.idx)
		}
	}
	for _, e := range s.topo.outgoing[loopID] {
		delete(s.credited, e.idx)
		delete(s.dead, e.idx)
	}
	delete(s.done, loopID)
	delete(s.enqueued, loopID)

	s.enqueue(loopID, Input{KeyLoopIteration: s.loopIter[loopID]})
}

// credit marks an edge as delivered and checks the target for readiness.
// extra carries scheduler-injected input keys for the target's next visit.
func (s *scheduler) credit(e edgeRef, extra Input) {
	if s.dead[e.idx] {
		return
	}
	s.credited[e.idx] = true
	if len(extra) > 0 {
		pending := s.inject[e.Target]
		if pending == nil {
			pending = Input{}
			s.inject[e.Target] = pending
		}
		for k, val := range extra {
			pending[k] = val
		}
	}
	s.checkReady(e.Target)
}

// kill marks an edge dead for this traversal. A target left with no live
// in-edges is unreached: it produces no record and its own out-edges die
// transitively, so merges downstream wait only on live branches.
func (s *scheduler) kill(e edgeRef) {
	if s.dead[e.idx] {
		return
	}
	s.dead[e.idx] = true

	target := e.Target
	if s.done[target] || s.enqueued[target] || s.unreached[target] {
		return
	}
	allDead := true
	for _, in := range s.topo.incoming[target] {
		if s.topo.isBackEdge(in) {
			continue
		}
		if !s.dead[in.idx] {
			allDead = false
			break
		}
	}
	if allDead {
		s.unreached[target] = true
		for _, out := range s.topo.outgoing[target] {
			s.kill(out)
		}
		return
	}
	// Losing an input may complete a merge's remaining live set.
	s.checkReady(target)
}

// checkReady enqueues the target once every live in-edge has delivered.
// Merge nodes configured first-complete become ready on the first delivery
// and cancel their remaining inbound branches when they run.
func (s *scheduler) checkReady(target string) {
	if s.done[target] || s.enqueued[target] || s.unreached[target] {
		return
	}
	node, ok := s.topo.nodes[target]
	if !ok {
		return
	}

	firstComplete := node.Type == NodeMerge &&
		node.ConfigString("mergeStrategy", "") == MergeFirstComplete

	liveCredits := 0
	for _, in := range s.topo.incoming[target] {
		if s.topo.isBackEdge(in) {
			continue
		}
		if s.dead[in.idx] {
			continue
		}
		if !s.credited[in.idx] {
			if firstComplete {
				continue
			}
			return
		}
		liveCredits++
	}
	if liveCredits == 0 {
		return
	}
	if firstComplete {
		// Cancel pending sibling branches: the merge proceeds with what has
		// arrived and ignores the rest.
		for _, in := range s.topo.incoming[target] {
			if !s.credited[in.idx] {
				s.dead[in.idx] = true
			}
		}
	}
	s.enqueue(target, s.assembleInput(node))
}

// assembleInput merges live predecessor outputs in edge order (later keys
// win), layers in scheduler-injected keys, and for merge nodes attaches the
// ordered per-source contributions.
func (s *scheduler) assembleInput(node Node) Input {
	input := Input{}
	var sources []SourceInput
	for _, in := range s.topo.incoming[node.ID] {
		if s.dead[in.idx] || !s.credited[in.idx] {
			continue
		}
		out := s.outputs[in.Source]
		for k, val := range out {
			input[k] = val
		}
		if node.Type == NodeMerge {
			sources = append(sources, SourceInput{
				NodeID: in.Source,
				Port:   in.SourcePort,
				Output: out.Clone(),
			})
		}
	}
	if node.Type == NodeMerge {
		input[KeySources] = sources
	}
	if pending, ok := s.inject[node.ID]; ok {
		for k, val := range pending {
			input[k] = val
		}
		delete(s.inject, node.ID)
	}
	return input
}

func (s *scheduler) enqueue(nodeID string, input Input) {
	node, ok := s.topo.nodes[nodeID]
	if !ok {
		return
	}
	if input == nil {
		input = Input{}
	}
	s.enqueued[nodeID] = true
	s.queue = append(s.queue, &visit{
		node:  node,
		input: input,
		rec:   newNodeExecution(node, input),
	})
}

// progress publishes the completion ratio after each visit.
func (s *scheduler) progress() {
	completed := s.exec.completedCount()
	total := len(s.wf.Nodes)
	ratio := 0.0
	if total > 0 {
		ratio = float64(completed) / float64(total)
	}
	s.publish(stream.Event{
		Type: stream.EventProgress,
		Payload: map[string]any{
			"progress":       ratio,
			"totalNodes":     total,
			"completedNodes": completed,
		},
	})
	s.observer.OnProgress(completed, total)
}

func (s *scheduler) publish(ev stream.Event) {
	if s.str == nil {
		return
	}
	s.str.Publish(ev)
	s.metrics.StreamEvent(string(ev.Type))
}

func (s *scheduler) isCancelled(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

func (s *scheduler) finishCompleted() {
	if s.finished {
		return
	}
	s.finished = true
	s.exec.Status = ExecutionCompleted
	s.exec.EndedAt = time.Now().UTC()
	s.exec.CurrentNode = ""
	s.publish(stream.Event{
		Type:    stream.EventComplete,
		Payload: map[string]any{"status": string(ExecutionCompleted)},
	})
	s.emitSeq++
	s.emitter.Emit(emit.Event{
		ExecutionID: s.exec.ID,
		Seq:         s.emitSeq,
		Msg:         "execution_complete",
		Meta:        map[string]any{"status": string(ExecutionCompleted)},
	})
	s.metrics.ExecutionFinished(ExecutionCompleted)
	s.observer.OnExecutionComplete(s.exec)
}

func (s *scheduler) finishFailed(execErr *ExecutionError) {
	if s.finished {
		return
	}
	s.finished = true
	s.exec.Status = ExecutionFailed
	s.exec.EndedAt = time.Now().UTC()
	s.exec.Error = execErr
	s.publish(stream.Event{
		Type:    stream.EventError,
		Payload: map[string]any{"message": execErr.Message, "code": execErr.Kind},
	})
	s.emitSeq++
	s.emitter.Emit(emit.Event{
		ExecutionID: s.exec.ID,
		Seq:         s.emitSeq,
		Msg:         "execution_failed",
		Meta:        map[string]any{"error": execErr.Message, "kind": execErr.Kind},
	})
	s.metrics.ExecutionFinished(ExecutionFailed)
	s.observer.OnExecutionComplete(s.exec)
}

func (s *scheduler) finishCancelled() {
	if s.finished {
		return
	}
	if s.awaiting != nil {
		// A cancel during pause discards the awaited node.
		s.awaiting.rec.Status = NodeFailed
		s.awaiting.rec.EndedAt = time.Now().UTC()
		s.awaiting.rec.Error = ErrCancelled.Error()
		s.awaiting = nil
	}
	s.finishFailed(&ExecutionError{Kind: ErrKindCancelled, Message: ErrCancelled.Error()})
}

// intFrom coerces the numeric types JSON decoding and runners produce.
func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// DefaultMaxIterations bounds loop nodes that do not configure their own
// ceiling.
const DefaultMaxIterations = 5

// MergeFirstComplete is the merge strategy that proceeds on the first
// arriving branch and cancels the rest.
const MergeFirstComplete = "first-complete"
