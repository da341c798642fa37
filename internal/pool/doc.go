// Package pool implements the resource pools owned by a compute runtime:
// command buffers, descriptor sets, fences and timestamp queries.
//
// Pools hand out reusable handles and reclaim them in bulk at checkpoints
// chosen by the caller. A handle is never handed out twice between two
// resets, so exhaustion either grows the pool or fails with [ErrExhausted].
//
// CommandPool, DescriptorPool and QueryPool are not safe for concurrent use;
// the runtime guards them with its stream lock. FencePool has its own mutex.
package pool

import "errors"

var (
	// ErrExhausted is returned when a pool cannot satisfy a request
	// without growing past its configured limit.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrInvalidState is returned when a pooled handle is used out of order.
	ErrInvalidState = errors.New("pool: invalid handle state")

	// ErrUnbound is returned when a descriptor set is realized with empty slots.
	ErrUnbound = errors.New("pool: descriptor slot not bound")
)
