package gpucore

import (
	"errors"
	"time"
)

// ErrUnsupported is returned (possibly wrapped) by a backend for an optional
// capability it does not provide, such as timestamp queries. It does not
// indicate that the device is in an unknown state.
var ErrUnsupported = errors.New("gpucore: operation not supported by backend")

// ErrInvalidPipelineSpec is returned (possibly wrapped) when a pipeline is
// rejected before any device object is created: the template does not
// render, or the local size is zero or over the device limits.
var ErrInvalidPipelineSpec = errors.New("gpucore: invalid pipeline spec")

// Device is the accelerator as seen by the runtime.
//
// Implementations are not required to be safe for concurrent use except
// where noted: the runtime serializes recording-related calls under its
// stream lock.
type Device interface {
	// CreateCommandBuffer allocates a command buffer in the empty state.
	CreateCommandBuffer(label string) (CommandBuffer, error)

	// FreeCommandBuffer releases a command buffer.
	FreeCommandBuffer(cmd CommandBuffer)

	// Pipeline returns the pipeline for spec, compiling and caching it on
	// first use.
	Pipeline(spec PipelineSpec) (Pipeline, error)

	// CreateDescriptorSet realizes a binding table for pipeline.
	CreateDescriptorSet(p Pipeline, entries []DescriptorEntry) (DescriptorSet, error)

	// DestroyDescriptorSet releases a descriptor set.
	DestroyDescriptorSet(set DescriptorSet)

	CreateFence() (Fence, error)
	ResetFence(f Fence) error
	DestroyFence(f Fence)

	// Wait blocks until f is signaled or timeout elapses. It reports
	// whether the fence was signaled.
	Wait(f Fence, timeout time.Duration) (bool, error)

	// WaitIdle blocks until all submitted work has completed.
	// It must be safe to call concurrently with other methods.
	WaitIdle() error

	// CreateQueryPool allocates count timestamp slots. Backends without
	// timestamp support return an error wrapping ErrUnsupported.
	CreateQueryPool(count uint32) (QueryPool, error)

	// QueryResults reads count raw timestamps starting at first.
	QueryResults(pool QueryPool, first, count uint32) ([]uint64, error)

	DestroyQueryPool(pool QueryPool)

	// TimestampPeriod returns nanoseconds per timestamp tick.
	TimestampPeriod() float64

	DestroyBuffer(b Buffer)
	DestroyImage(img Image)

	// Queue returns the single submission queue.
	Queue() Queue
}

// Queue submits recorded work to the device.
type Queue interface {
	// Submit hands cmds to the device in order. If fence is non-nil it is
	// signaled once this and all earlier submissions have completed.
	Submit(cmds []CommandBuffer, fence Fence) error
}

// CommandBuffer records device commands.
//
// Binding calls affect the next Dispatch only. Recording calls between Begin
// and End never fail individually; backends report recording problems from
// End.
type CommandBuffer interface {
	// Begin starts recording. A reusable buffer may be submitted more than
	// once after End.
	Begin(reusable bool) error

	BindPipeline(p Pipeline)
	BindDescriptorSet(set DescriptorSet)
	InsertBarrier(b Barrier)
	Dispatch(groups Extent3D)

	WriteTimestamp(pool QueryPool, index uint32)
	ResetQueries(pool QueryPool, first, count uint32)

	// End finishes recording and makes the buffer submittable.
	End() error

	// Reset discards recorded commands and returns the buffer to the empty state.
	Reset() error
}
