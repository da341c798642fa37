// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/pool"
)

// stream is the recording stream: at most one open command buffer and the
// number of dispatches recorded into it. All fields are guarded by the
// runtime's stream lock.
type stream struct {
	cmds  *pool.CommandPool
	queue gpucore.Queue

	current *pool.Command
	// retained is a reusable buffer that was submitted without final use
	// and may be submitted again with resubmit.
	retained *pool.Command

	counter     uint32
	submissions uint64
}

// ensureOpen returns the open command buffer, opening one if needed.
func (s *stream) ensureOpen(reusable bool) (*pool.Command, error) {
	if s.current != nil {
		return s.current, nil
	}
	c, err := s.cmds.Acquire(reusable)
	if err != nil {
		return nil, err
	}
	s.current = c
	return c, nil
}

// submit ends and submits the open command buffer, signaling fence if it is
// non-nil. It reports false and does nothing when no buffer is open.
func (s *stream) submit(fence gpucore.Fence, finalUse bool) (bool, error) {
	c := s.current
	if c == nil {
		return false, nil
	}
	if err := c.End(); err != nil {
		return false, err
	}
	if err := s.queue.Submit([]gpucore.CommandBuffer{c.Buffer()}, fence); err != nil {
		return false, err
	}
	c.MarkSubmitted(finalUse)
	slogger().Debug("compute: submitted", "dispatches", s.counter, "fenced", fence != nil, "reusable", c.Reusable())

	s.current = nil
	s.counter = 0
	s.submissions++
	if c.State() == pool.CommandSubmitted {
		s.retained = c
	}
	return true, nil
}

// resubmit submits the retained reusable buffer again.
func (s *stream) resubmit(fence gpucore.Fence, finalUse bool) error {
	c := s.retained
	if c == nil {
		return ErrNothingToResubmit
	}
	if err := c.CheckSubmittable(); err != nil {
		return err
	}
	if err := s.queue.Submit([]gpucore.CommandBuffer{c.Buffer()}, fence); err != nil {
		return err
	}
	c.MarkSubmitted(finalUse)
	s.submissions++
	if c.State() != pool.CommandSubmitted {
		s.retained = nil
	}
	return nil
}

// idle reports whether nothing is open or retained, so that resetting the
// command pool cannot discard work the caller still refers to.
func (s *stream) idle() bool {
	return s.current == nil && s.retained == nil
}

// reset recycles every command buffer. The device must be idle.
func (s *stream) reset() error {
	s.current = nil
	s.retained = nil
	s.counter = 0
	return s.cmds.Reset()
}
