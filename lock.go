// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// StreamLock is a held stream lock. While a goroutine holds it no other
// goroutine can record into or submit the recording stream, so a sequence
// of dispatches, a fenced submission and the wait for that fence execute as
// one unit.
//
// A StreamLock is not safe for concurrent use and must be released with
// Unlock exactly once; further calls return ErrLockReleased.
type StreamLock struct {
	r        *Runtime
	released bool

	fence gpucore.Fence
	armed bool

	// Recorded when the fence was submitted.
	seq        uint64
	cutBuffers int
	cutImages  int
}

// Lock acquires the stream lock. It blocks while another goroutine holds it
// or is dispatching.
func (r *Runtime) Lock() *StreamLock {
	r.mu.Lock()
	return &StreamLock{r: r}
}

func (l *StreamLock) check() error {
	if l.released {
		return ErrLockReleased
	}
	return l.r.check()
}

// Fence returns the fence owned by this lock, loaning one from the fence
// pool on first use. Pass it in Job.Fence or to Submit, then call Wait.
func (l *StreamLock) Fence() (gpucore.Fence, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if l.fence != nil {
		return l.fence, nil
	}
	f, err := l.r.fences.Get()
	if err != nil {
		return nil, l.r.fail("create fence", err)
	}
	l.fence = f
	return f, nil
}

// checkFence validates a fence passed to a submitting call.
func (l *StreamLock) checkFence(f gpucore.Fence) error {
	switch {
	case f == nil:
		return nil
	case l.fence == nil || f != l.fence:
		return ErrForeignFence
	case l.armed:
		return ErrFenceInFlight
	}
	return nil
}

// cut snapshots the reclaim lists ahead of a fenced submission.
func (l *StreamLock) cut() (int, int) {
	return l.r.buffers.len(), l.r.images.len()
}

func (l *StreamLock) arm(nb, ni int) {
	l.armed = true
	l.seq = l.r.stream.submissions
	l.cutBuffers, l.cutImages = nb, ni
}

// SubmitJob records job like Runtime.SubmitJob. The job may carry this
// lock's fence, which submits the stream immediately.
func (l *StreamLock) SubmitJob(job Job) (bool, error) {
	if err := l.check(); err != nil {
		return false, err
	}
	if err := l.checkFence(job.Fence); err != nil {
		return false, err
	}
	nb, ni := l.cut()
	submitted, err := l.r.submitJob(&job)
	if submitted && job.Fence != nil {
		l.arm(nb, ni)
	}
	return submitted, err
}

// Submit submits the open command buffer, if any, signaling fence when it is
// non-nil. finalUse marks a reusable buffer as not to be resubmitted. It
// reports whether anything was submitted; with nothing recorded the fence is
// not armed and Wait returns immediately.
func (l *StreamLock) Submit(fence gpucore.Fence, finalUse bool) (bool, error) {
	if err := l.check(); err != nil {
		return false, err
	}
	if err := l.checkFence(fence); err != nil {
		return false, err
	}
	nb, ni := l.cut()
	submitted, err := l.r.stream.submit(fence, finalUse)
	if err != nil {
		return false, l.r.fail("submit", err)
	}
	if submitted && fence != nil {
		l.arm(nb, ni)
	}
	return submitted, nil
}

// BeginReusable opens a reusable command buffer. Pending dispatches in a
// non-reusable buffer are submitted first. The reusable buffer collects the
// following dispatches until it is submitted; afterwards it can be submitted
// again with Resubmit until a submission passes finalUse.
func (l *StreamLock) BeginReusable() error {
	if err := l.check(); err != nil {
		return err
	}
	s := &l.r.stream
	if s.current != nil {
		if s.current.Reusable() {
			return nil
		}
		if _, err := s.submit(nil, false); err != nil {
			return l.r.fail("submit", err)
		}
	}
	if _, err := s.ensureOpen(true); err != nil {
		return l.r.fail("open command buffer", err)
	}
	return nil
}

// Resubmit submits the retained reusable command buffer again.
func (l *StreamLock) Resubmit(fence gpucore.Fence, finalUse bool) error {
	if err := l.check(); err != nil {
		return err
	}
	if err := l.checkFence(fence); err != nil {
		return err
	}
	nb, ni := l.cut()
	if err := l.r.stream.resubmit(fence, finalUse); err != nil {
		return l.r.fail("resubmit", err)
	}
	if fence != nil {
		l.arm(nb, ni)
	}
	return nil
}

// Wait blocks until the fenced submission completes. The device is then
// idle up to that submission: the runtime recycles its command and
// descriptor pools, unless work was recorded after the fence, and destroys
// the resources registered for cleanup before the submission. The fence
// goes back to the pool and a later call to Fence loans a fresh one.
//
// Wait returns nil immediately if the fence was never submitted.
func (l *StreamLock) Wait() error {
	if l.released {
		return ErrLockReleased
	}
	if !l.armed {
		return nil
	}
	r := l.r
	// A closing runtime still lets the holder finish its wait.
	if f := r.failure.Load(); f != nil {
		return fmt.Errorf("%w: %w", ErrRuntimeUnusable, f)
	}
	ok, err := r.device.Wait(l.fence, r.cfg.WaitTimeout)
	if err != nil {
		return r.fail("wait", err)
	}
	if !ok {
		return fmt.Errorf("%w after %s", ErrWaitTimeout, r.cfg.WaitTimeout)
	}

	l.armed = false
	f := l.fence
	l.fence = nil
	if err := r.fences.Put(f); err != nil {
		return r.fail("reset fence", err)
	}
	return r.recycle(l.seq, l.cutBuffers, l.cutImages)
}

// Flush submits pending work and waits for the device to finish everything
// submitted so far, then recycles pools and drains the reclaim lists.
func (l *StreamLock) Flush() error {
	if err := l.check(); err != nil {
		return err
	}
	if l.armed {
		if err := l.Wait(); err != nil {
			return err
		}
	}
	r := l.r
	if r.stream.current != nil {
		f, err := l.Fence()
		if err != nil {
			return err
		}
		if _, err := l.Submit(f, false); err != nil {
			return err
		}
		return l.Wait()
	}

	// Nothing open, but automatic submissions may still be running.
	nb, ni := l.cut()
	if err := r.device.WaitIdle(); err != nil {
		return r.fail("wait idle", err)
	}
	return r.recycle(r.stream.submissions, nb, ni)
}

// Stats returns a snapshot without re-acquiring the stream lock.
func (l *StreamLock) Stats() Stats {
	return l.r.statsLocked()
}

// Unlock releases the stream lock. If the lock's fence was submitted but not
// waited on, Unlock waits for it first so the fence can be reused.
func (l *StreamLock) Unlock() {
	if l.released {
		return
	}
	if l.armed {
		if err := l.Wait(); err != nil {
			slogger().Warn("compute: wait on unlock", "err", err)
		}
	}
	if l.fence != nil && !l.armed {
		if err := l.r.fences.Put(l.fence); err != nil {
			slogger().Warn("compute: return fence", "err", err)
		}
	}
	l.fence = nil
	l.released = true
	l.r.mu.Unlock()
}
