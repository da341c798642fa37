// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/fakegpu"
)

func TestStreamLock_FenceSubmitsImmediately(t *testing.T) {
	rt, dev := newTestRuntime(t, WithSubmitFrequency(4))

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)

	submitted, err := l.SubmitJob(addJob(1))
	require.NoError(t, err)
	assert.False(t, submitted)

	j := addJob(2)
	j.Fence = f
	submitted, err = l.SubmitJob(j)
	require.NoError(t, err)
	assert.True(t, submitted, "a fence forces submission regardless of threshold")
	assert.Equal(t, uint32(0), l.Stats().Pending)

	subs := dev.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].Dispatches)
	assert.Same(t, f, subs[0].Fence)

	require.NoError(t, l.Wait())
	assert.Equal(t, 1, f.(*fakegpu.Fence).Waits)
}

func TestStreamLock_EmptyArgumentWithFenceFlushesPending(t *testing.T) {
	rt, dev := newTestRuntime(t, WithSubmitFrequency(4))

	l := rt.Lock()
	defer l.Unlock()
	for i := range 2 {
		_, err := l.SubmitJob(addJob(uint32(i)))
		require.NoError(t, err)
	}
	f, err := l.Fence()
	require.NoError(t, err)

	j := emptyJob()
	j.Fence = f
	submitted, err := l.SubmitJob(j)
	require.NoError(t, err)
	assert.True(t, submitted)

	subs := dev.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].Dispatches, "only the pending dispatches are submitted")
	assert.Same(t, f, subs[0].Fence)
	require.NoError(t, l.Wait())
}

func TestStreamLock_EmptyArgumentWithFenceOnEmptyStream(t *testing.T) {
	rt, dev := newTestRuntime(t, WithSubmitFrequency(4))

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)

	j := emptyJob()
	j.Fence = f
	submitted, err := l.SubmitJob(j)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Equal(t, 0, dev.SubmissionCount())

	require.NoError(t, l.Wait(), "waiting on a fence that was never submitted returns at once")
	assert.Equal(t, 0, f.(*fakegpu.Fence).Waits)
}

func TestStreamLock_WaitDrainsOnlyEarlierCleanups(t *testing.T) {
	rt, dev := newTestRuntime(t)
	before1 := fakegpu.NewBuffer("before1", 8)
	before2 := fakegpu.NewBuffer("before2", 8)
	beforeImg := fakegpu.NewImage("before", 4, 4)
	rt.RegisterBufferCleanup(before1)
	rt.RegisterBufferCleanup(before2)
	rt.RegisterImageCleanup(beforeImg)

	l := rt.Lock()
	f, err := l.Fence()
	require.NoError(t, err)
	j := addJob(1)
	j.Fence = f
	_, err = l.SubmitJob(j)
	require.NoError(t, err)

	after := fakegpu.NewBuffer("after", 8)
	rt.RegisterBufferCleanup(after)

	require.NoError(t, l.Wait())
	assert.Equal(t, []gpucore.Buffer{before1, before2}, dev.DestroyedBuffers())
	assert.Equal(t, []gpucore.Image{beforeImg}, dev.DestroyedImages())
	assert.Equal(t, 1, l.Stats().PendingBufferCleanups)
	l.Unlock()

	require.NoError(t, rt.Flush())
	assert.Equal(t, []gpucore.Buffer{before1, before2, after}, dev.DestroyedBuffers())
}

func TestStreamLock_WaitRecyclesPools(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)
	for i := range 3 {
		_, err := l.SubmitJob(addJob(uint32(i)))
		require.NoError(t, err)
	}
	_, err = l.Submit(f, false)
	require.NoError(t, err)
	require.Equal(t, 3, dev.LiveDescriptorSets())

	require.NoError(t, l.Wait())
	st := l.Stats()
	assert.Equal(t, 0, st.CommandBuffersInUse)
	assert.Equal(t, 0, st.DescriptorSets)
	assert.Equal(t, 0, dev.LiveDescriptorSets())
}

func TestStreamLock_WaitKeepsPoolsWithLaterWork(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)
	j := addJob(1)
	j.Fence = f
	_, err = l.SubmitJob(j)
	require.NoError(t, err)
	_, err = l.SubmitJob(addJob(2))
	require.NoError(t, err)

	require.NoError(t, l.Wait())
	st := l.Stats()
	assert.Equal(t, uint32(1), st.Pending)
	assert.Equal(t, 2, st.CommandBuffersInUse)
	assert.Equal(t, 2, dev.LiveDescriptorSets(), "sets of unsubmitted work survive")
}

func TestStreamLock_FenceRules(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()

	foreign, err := dev.CreateFence()
	require.NoError(t, err)
	j := addJob(1)
	j.Fence = foreign
	_, err = l.SubmitJob(j)
	assert.ErrorIs(t, err, ErrForeignFence)

	f, err := l.Fence()
	require.NoError(t, err)
	again, err := l.Fence()
	require.NoError(t, err)
	assert.Same(t, f, again, "one fence per lock until Wait")

	j = addJob(2)
	j.Fence = f
	_, err = l.SubmitJob(j)
	require.NoError(t, err)
	j = addJob(3)
	j.Fence = f
	_, err = l.SubmitJob(j)
	assert.ErrorIs(t, err, ErrFenceInFlight)

	require.NoError(t, l.Wait())
	next, err := l.Fence()
	require.NoError(t, err)
	j = addJob(4)
	j.Fence = next
	_, err = l.SubmitJob(j)
	assert.NoError(t, err)
	assert.NoError(t, rt.Usable())
}

func TestStreamLock_Released(t *testing.T) {
	rt, _ := newTestRuntime(t)
	l := rt.Lock()
	l.Unlock()
	l.Unlock()

	_, err := l.SubmitJob(addJob(1))
	assert.ErrorIs(t, err, ErrLockReleased)
	assert.ErrorIs(t, l.Wait(), ErrLockReleased)
	_, err = l.Fence()
	assert.ErrorIs(t, err, ErrLockReleased)

	// The stream lock is free again.
	_, err = rt.SubmitJob(addJob(2))
	assert.NoError(t, err)
}

func TestStreamLock_UnlockWaitsForArmedFence(t *testing.T) {
	rt, _ := newTestRuntime(t)

	l := rt.Lock()
	f, err := l.Fence()
	require.NoError(t, err)
	j := addJob(1)
	j.Fence = f
	_, err = l.SubmitJob(j)
	require.NoError(t, err)
	l.Unlock()

	assert.Equal(t, 1, f.(*fakegpu.Fence).Waits)
	assert.Equal(t, 0, rt.Stats().FencesLoaned)
}

func TestStreamLock_WaitTimeout(t *testing.T) {
	rt, dev := newTestRuntime(t)
	dev.UnsignaledWaits = 1

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)
	j := addJob(1)
	j.Fence = f
	_, err = l.SubmitJob(j)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Wait(), ErrWaitTimeout)
	assert.NoError(t, rt.Usable(), "a timeout leaves the runtime usable")
	assert.NoError(t, l.Wait(), "the wait can be retried")
}

func TestStreamLock_ReusableCommandBuffer(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()
	require.NoError(t, l.BeginReusable())
	for i := range 2 {
		_, err := l.SubmitJob(addJob(uint32(i)))
		require.NoError(t, err)
	}
	submitted, err := l.Submit(nil, false)
	require.NoError(t, err)
	require.True(t, submitted)

	require.NoError(t, l.Resubmit(nil, false))
	f, err := l.Fence()
	require.NoError(t, err)
	require.NoError(t, l.Resubmit(f, true))

	subs := dev.Submissions()
	require.Len(t, subs, 3)
	assert.Same(t, subs[0].Buffers[0], subs[1].Buffers[0])
	assert.Same(t, subs[0].Buffers[0], subs[2].Buffers[0])
	assert.Equal(t, 2, subs[2].Dispatches)

	assert.ErrorIs(t, l.Resubmit(nil, false), ErrNothingToResubmit, "final use retires the buffer")
	assert.NoError(t, rt.Usable())

	require.NoError(t, l.Wait())
	assert.Equal(t, 0, l.Stats().CommandBuffersInUse)
}

func TestStreamLock_BeginReusableSubmitsPending(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()
	_, err := l.SubmitJob(addJob(1))
	require.NoError(t, err)
	require.NoError(t, l.BeginReusable())
	assert.Equal(t, 1, dev.SubmissionCount())
	require.NoError(t, l.BeginReusable(), "already open reusable buffer is kept")
	assert.Equal(t, 1, dev.SubmissionCount())
}

func TestStreamLock_SubmitNothingOpen(t *testing.T) {
	rt, dev := newTestRuntime(t)

	l := rt.Lock()
	defer l.Unlock()
	f, err := l.Fence()
	require.NoError(t, err)
	submitted, err := l.Submit(f, true)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Equal(t, 0, dev.SubmissionCount())
	assert.NoError(t, l.Wait())
}
