// Package ratelimit implements the multi-window admission gate for
// workflow executions.
//
// Three windows apply to authenticated callers (daily per teacher, hourly
// per classroom, burst per teacher) and one to unauthenticated sources (per
// IP). Counters live behind the CounterStore interface: in-memory for tests
// and single-process deployments, Redis for shared deployments. If the
// store is unreachable the gate fails open; availability beats strict
// accounting for a learning tool.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the backend the gate counts against.
//
// Fixed windows use a named counter with an expiry; sliding windows use a
// timestamped set pruned to the window on every read.
type CounterStore interface {
	// FixedCount returns the current value of a fixed-window counter.
	// Missing counters read zero.
	FixedCount(ctx context.Context, key string) (int64, error)

	// FixedIncr increments a fixed-window counter, setting its expiry when
	// the counter is created, and returns the new value.
	FixedIncr(ctx context.Context, key string, expiry time.Duration) (int64, error)

	// SlidingCount returns how many events fall within the trailing window.
	SlidingCount(ctx context.Context, key string, window time.Duration) (int64, error)

	// SlidingAdd records one event at the current time.
	SlidingAdd(ctx context.Context, key string, window time.Duration) error
}
