// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/pool"
)

// Job is one shader dispatch.
type Job struct {
	Shader *gpucore.ShaderInfo

	// Barrier is recorded ahead of the dispatch. Nil or empty records nothing.
	Barrier *gpucore.Barrier

	// GlobalSize is the number of invocations per axis; the dispatch covers
	// it with ceil(GlobalSize/LocalSize) work groups.
	GlobalSize gpucore.Extent3D
	LocalSize  gpucore.Extent3D

	SpecConstants []gpucore.SpecConstant

	// Fence, when set, submits the stream right after this dispatch and is
	// signaled on completion. Only jobs submitted through a StreamLock may
	// carry a fence.
	Fence gpucore.Fence

	// DispatchID is an opaque tag reported by Diagnostics.
	DispatchID uint32

	// Args are bound to the shader layout slots in order.
	Args []Argument
}

// SubmitJob records one dispatch into the recording stream and reports
// whether this call submitted the stream to the device.
//
// If any argument has no backing memory the call does nothing and reports
// false. Otherwise the stream is submitted once Config.CmdSubmitFrequency
// dispatches have been recorded since the last submission.
//
// Jobs carrying a fence must go through [StreamLock.SubmitJob].
func (r *Runtime) SubmitJob(job Job) (bool, error) {
	if job.Fence != nil {
		return false, ErrFenceWithoutLock
	}
	if err := r.check(); err != nil {
		return false, err
	}
	if anyEmpty(job.Args) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return false, err
	}
	return r.submitJob(&job)
}

// submitJob is the dispatch assembler. The stream lock is held.
func (r *Runtime) submitJob(job *Job) (bool, error) {
	if anyEmpty(job.Args) {
		// Nothing to bind. A fence still needs a submission to signal it,
		// which only exists if earlier dispatches are pending.
		if job.Fence != nil && r.stream.counter > 0 {
			if _, err := r.stream.submit(job.Fence, false); err != nil {
				return false, r.fail("submit", err)
			}
			return true, nil
		}
		return false, nil
	}

	if job.Shader == nil {
		return false, fmt.Errorf("%w: no shader", ErrInvalidJob)
	}
	entries, err := bindEntries(job.Shader.Layout, job.Args)
	if err != nil {
		return false, fmt.Errorf("compute: %s: %w", job.Shader.Name, err)
	}

	pipeline, err := r.device.Pipeline(gpucore.PipelineSpec{
		Shader:        job.Shader,
		LocalSize:     job.LocalSize,
		SpecConstants: job.SpecConstants,
	})
	if err != nil {
		return false, r.fail("pipeline "+job.Shader.Name, err)
	}

	cmd, err := r.stream.ensureOpen(false)
	if err != nil {
		return false, r.fail("open command buffer", err)
	}

	set, err := r.descriptors.Acquire(pipeline, job.Shader.Layout)
	if err != nil {
		return false, r.fail("acquire descriptor set", err)
	}
	for i, e := range entries {
		if err := set.Bind(i, e); err != nil {
			return false, err
		}
	}
	handle, err := set.Realize()
	if err != nil {
		return false, r.fail("create descriptor set", err)
	}

	cb := cmd.Buffer()
	marked := r.queries.MarkStart(cb, pool.Mark{
		Kernel:     job.Shader.Name,
		DispatchID: job.DispatchID,
		GlobalSize: job.GlobalSize,
		LocalSize:  job.LocalSize,
	})
	if !marked && r.queries.Dropped() == 1 {
		slogger().Warn("compute: timestamp query pool full, dispatches no longer timed",
			"max_queries", r.cfg.QueryPool.MaxQueries)
	}
	if !job.Barrier.Empty() {
		cb.InsertBarrier(*job.Barrier)
	}
	cb.BindPipeline(pipeline)
	cb.BindDescriptorSet(handle)
	cb.Dispatch(gpucore.WorkGroupCount(job.GlobalSize, job.LocalSize))
	if marked {
		r.queries.MarkEnd(cb)
	}

	r.stream.counter++
	r.dispatches++

	if job.Fence != nil || r.stream.counter >= r.cfg.CmdSubmitFrequency {
		if _, err := r.stream.submit(job.Fence, false); err != nil {
			return false, r.fail("submit", err)
		}
		return true, nil
	}
	return false, nil
}
