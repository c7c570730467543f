package flow

// Observer receives execution lifecycle callbacks in order of occurrence.
//
// Embed BaseObserver and override only the methods you need:
//
//	type progressBar struct {
//	    flow.BaseObserver
//	}
//
//	func (p *progressBar) OnProgress(completed, total int) {
//	    fmt.Printf("\r%d/%d", completed, total)
//	}
//
// Callbacks run synchronously on the scheduling goroutine; slow observers
// slow the execution.
type Observer interface {
	// OnNodeStart fires before the runner is invoked.
	OnNodeStart(nodeID string, node Node)

	// OnNodeComplete fires after a runner returns successfully.
	OnNodeComplete(nodeID string, output Input)

	// OnNodeError fires when a runner fails or times out.
	OnNodeError(nodeID string, err error)

	// OnProgress fires after each completion with visit totals.
	OnProgress(completed, total int)

	// OnStreamToken fires for each partial token a streaming runner emits.
	OnStreamToken(nodeID, content string)

	// OnExecutionComplete fires exactly once when a terminal state is
	// reached, including failure and cancellation.
	OnExecutionComplete(exec *WorkflowExecution)
}

// BaseObserver is a no-op Observer intended for embedding.
type BaseObserver struct{}

// OnNodeStart implements Observer.
func (BaseObserver) OnNodeStart(string, Node) {}

// OnNodeComplete implements Observer.
func (BaseObserver) OnNodeComplete(string, Input) {}

// OnNodeError implements Observer.
func (BaseObserver) OnNodeError(string, error) {}

// OnProgress implements Observer.
func (BaseObserver) OnProgress(int, int) {}

// OnStreamToken implements Observer.
func (BaseObserver) OnStreamToken(string, string) {}

// OnExecutionComplete implements Observer.
func (BaseObserver) OnExecutionComplete(*WorkflowExecution) {}
