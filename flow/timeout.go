package flow

import (
	"context"
	"fmt"
	"time"
)

// invokeWithTimeout wraps a runner invocation with the per-node deadline.
//
// With a zero timeout the runner executes directly (the default: timeouts
// disabled). Otherwise the runner receives a context that expires after the
// configured duration; on expiry the node fails with the timeout error kind
// and the execution terminates.
func invokeWithTimeout(
	ctx context.Context,
	fn RunnerFunc,
	node Node,
	input Input,
	ec *ExecutionContext,
	timeout time.Duration,
) (RunnerResult, error) {
	if timeout <= 0 {
		return fn(ctx, node, input, ec)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(timeoutCtx, node, input, ec)
	if timeoutCtx.Err() == context.DeadlineExceeded {
		return result, &ExecutionError{
			Kind:    ErrKindTimeout,
			Message: fmt.Sprintf("node %s exceeded timeout of %v", node.ID, timeout),
		}
	}
	return result, err
}
