package flow

import "context"

// RunnerResult is what a node runner hands back to the scheduler.
//
// The scheduler, never the runner, translates the result into stream events
// and record updates. Pause transitions the execution to awaiting-input;
// Streamed marks that the runner emitted partial tokens while producing
// Output.
type RunnerResult struct {
	Output   Input
	Pause    bool
	Streamed bool
}

// RunnerFunc executes a single node visit.
//
// Runners are pure with respect to their arguments plus any injected
// collaborators (the AI generator, the scaffolding catalogue): they read the
// node configuration and the assembled input, may mutate the execution
// context (history, variables, content, working level), and return an output
// mapping that feeds every live successor.
//
// A returned error fails the node and terminates the execution; runners that
// perform long I/O must honour ctx cancellation.
type RunnerFunc func(ctx context.Context, node Node, input Input, ec *ExecutionContext) (RunnerResult, error)

// Registry resolves node types to runners. The builtin implementation lives
// in the runner package; tests substitute small fixed maps.
//
// Resolve returning ok=false is not a failure: the scheduler records the
// visit as skipped and propagates the node's inputs unchanged.
type Registry interface {
	Resolve(t NodeType) (RunnerFunc, bool)
}

// RegistryMap is a minimal Registry backed by a map, handy in tests and for
// callers composing a registry by hand.
type RegistryMap map[NodeType]RunnerFunc

// Resolve implements Registry.
func (m RegistryMap) Resolve(t NodeType) (RunnerFunc, bool) {
	fn, ok := m[t]
	return fn, ok
}
