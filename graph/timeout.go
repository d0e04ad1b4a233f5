package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// getNodeTimeout determines the effective timeout for a node.
//
// Priority order:
//  1. NodePolicy.Timeout (if policy is set and Timeout > 0)
//  2. defaultTimeout (the Engine's DefaultNodeTimeout)
//  3. 0 (no timeout)
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// invokeWithTimeout runs op under the node's effective timeout.
//
// A timeout is reported as an EngineError with code "NODE_TIMEOUT" that
// wraps context.DeadlineExceeded. Cancellation of the parent context is
// returned as-is.
func invokeWithTimeout(ctx context.Context, op Op, c *Context, defaultTimeout time.Duration) ([]Value, error) {
	timeout := getNodeTimeout(c.node.Policy, defaultTimeout)
	if timeout == 0 {
		return op.Invoke(ctx, c)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outs, err := op.Invoke(timeoutCtx, c)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: %w", &EngineError{
			Message: fmt.Sprintf("node %d exceeded timeout of %v", c.node.ID, timeout),
			Code:    "NODE_TIMEOUT",
		}, context.DeadlineExceeded)
	}
	return outs, err
}
