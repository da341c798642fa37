// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// QueryConfig sizes a QueryPool.
type QueryConfig struct {
	// MaxQueries is the number of timestamp slots. Each dispatch uses two.
	MaxQueries uint32
	// InitialReserve preallocates room for this many entries.
	InitialReserve int
}

// Mark is the metadata recorded with a start timestamp.
type Mark struct {
	Kernel     string
	DispatchID uint32
	GlobalSize gpucore.Extent3D
	LocalSize  gpucore.Extent3D
}

// Timing is one bracketed dispatch with its raw start and end ticks.
type Timing struct {
	Mark
	StartTick uint64
	EndTick   uint64
}

type queryEntry struct {
	Mark
	start uint32
	ended bool
}

// QueryPool records start/end timestamp pairs around dispatches.
// Until Initialize is called every method is a no-op that allocates nothing.
type QueryPool struct {
	dev        gpucore.Device
	cfg        QueryConfig
	handle     gpucore.QueryPool
	next       uint32
	entries    []queryEntry
	open       int
	needsReset bool
	dropped    int
}

// NewQueryPool returns an uninitialized pool.
func NewQueryPool(dev gpucore.Device, cfg QueryConfig) *QueryPool {
	return &QueryPool{dev: dev, cfg: cfg, open: -1}
}

// Initialize allocates the device query pool. It is idempotent.
func (p *QueryPool) Initialize() error {
	if p.handle != nil {
		return nil
	}
	h, err := p.dev.CreateQueryPool(p.cfg.MaxQueries)
	if err != nil {
		return fmt.Errorf("pool: create query pool: %w", err)
	}
	p.handle = h
	p.entries = make([]queryEntry, 0, p.cfg.InitialReserve)
	p.needsReset = true
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (p *QueryPool) Initialized() bool { return p.handle != nil }

// Reset starts a new measurement window. The device slots are cleared by
// the next MarkStart.
func (p *QueryPool) Reset() {
	if p.handle == nil {
		return
	}
	p.next = 0
	p.entries = p.entries[:0]
	p.open = -1
	p.needsReset = true
	p.dropped = 0
}

// MarkStart writes a start timestamp into cmd and remembers m. It reports
// false without recording anything when the pool is uninitialized or has no
// free slot pair; the latter is counted by Dropped.
func (p *QueryPool) MarkStart(cmd gpucore.CommandBuffer, m Mark) bool {
	if p.handle == nil {
		return false
	}
	if p.open >= 0 {
		// Unbalanced start; close the previous bracket where it stands.
		p.MarkEnd(cmd)
	}
	if p.needsReset {
		cmd.ResetQueries(p.handle, 0, p.cfg.MaxQueries)
		p.needsReset = false
	}
	if p.next+2 > p.cfg.MaxQueries {
		p.dropped++
		return false
	}
	cmd.WriteTimestamp(p.handle, p.next)
	p.entries = append(p.entries, queryEntry{Mark: m, start: p.next})
	p.open = len(p.entries) - 1
	p.next += 2
	return true
}

// MarkEnd writes the end timestamp for the open bracket, if any.
func (p *QueryPool) MarkEnd(cmd gpucore.CommandBuffer) {
	if p.handle == nil || p.open < 0 {
		return
	}
	e := &p.entries[p.open]
	cmd.WriteTimestamp(p.handle, e.start+1)
	e.ended = true
	p.open = -1
}

// Dropped returns the number of marks skipped for lack of slots since the
// last Reset.
func (p *QueryPool) Dropped() int { return p.dropped }

// Len returns the number of recorded brackets.
func (p *QueryPool) Len() int { return len(p.entries) }

// Results reads the device timestamps for every completed bracket. The
// caller must know that the recording command buffers have finished.
func (p *QueryPool) Results() ([]Timing, error) {
	if p.handle == nil || len(p.entries) == 0 {
		return nil, nil
	}
	raw, err := p.dev.QueryResults(p.handle, 0, p.next)
	if err != nil {
		return nil, fmt.Errorf("pool: query results: %w", err)
	}
	out := make([]Timing, 0, len(p.entries))
	for _, e := range p.entries {
		if !e.ended {
			continue
		}
		out = append(out, Timing{
			Mark:      e.Mark,
			StartTick: raw[e.start],
			EndTick:   raw[e.start+1],
		})
	}
	return out, nil
}

// Destroy releases the device query pool and returns to the uninitialized state.
func (p *QueryPool) Destroy() {
	if p.handle == nil {
		return
	}
	p.dev.DestroyQueryPool(p.handle)
	p.handle = nil
	p.entries = nil
	p.next = 0
	p.open = -1
}
