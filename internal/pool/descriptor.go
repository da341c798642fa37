// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// DescriptorConfig sizes one block of a DescriptorPool.
type DescriptorConfig struct {
	MaxSets        uint32
	UniformBuffers uint32
	StorageBuffers uint32
	StorageImages  uint32
	SampledImages  uint32

	// Grow adds another block of the same size when a request does not fit.
	// Without it the pool fails with ErrExhausted.
	Grow bool
}

func (c DescriptorConfig) limit(t gpucore.DescriptorType) uint32 {
	switch t {
	case gpucore.DescriptorTypeUniformBuffer:
		return c.UniformBuffers
	case gpucore.DescriptorTypeStorageBuffer:
		return c.StorageBuffers
	case gpucore.DescriptorTypeStorageImage:
		return c.StorageImages
	case gpucore.DescriptorTypeSampledImage:
		return c.SampledImages
	default:
		return 0
	}
}

// descriptorTypes lists every type a block tracks.
var descriptorTypes = [...]gpucore.DescriptorType{
	gpucore.DescriptorTypeUniformBuffer,
	gpucore.DescriptorTypeStorageBuffer,
	gpucore.DescriptorTypeStorageImage,
	gpucore.DescriptorTypeSampledImage,
}

type descriptorUsage struct {
	sets  uint32
	kinds map[gpucore.DescriptorType]uint32
}

func (u *descriptorUsage) fits(cfg DescriptorConfig, need map[gpucore.DescriptorType]uint32) bool {
	if u.sets+1 > cfg.MaxSets {
		return false
	}
	for t, n := range need {
		if u.kinds[t]+n > cfg.limit(t) {
			return false
		}
	}
	return true
}

// DescriptorStats is a snapshot of pool occupancy.
type DescriptorStats struct {
	Blocks int
	Sets   int
	// Live is the number of realized device descriptor sets.
	Live int
}

// DescriptorPool reserves descriptor capacity per shader invocation and
// releases all of it at once on Reset.
type DescriptorPool struct {
	dev    gpucore.Device
	cfg    DescriptorConfig
	blocks []*descriptorUsage
	sets   []*DescriptorSet
}

// NewDescriptorPool returns a pool with one block of capacity.
func NewDescriptorPool(dev gpucore.Device, cfg DescriptorConfig) *DescriptorPool {
	p := &DescriptorPool{dev: dev, cfg: cfg}
	p.blocks = append(p.blocks, newUsage())
	return p
}

func newUsage() *descriptorUsage {
	return &descriptorUsage{kinds: make(map[gpucore.DescriptorType]uint32, len(descriptorTypes))}
}

// Acquire reserves a set for a pipeline with the given slot layout.
func (p *DescriptorPool) Acquire(pipeline gpucore.Pipeline, layout []gpucore.DescriptorType) (*DescriptorSet, error) {
	need := make(map[gpucore.DescriptorType]uint32, len(descriptorTypes))
	for _, t := range layout {
		if p.cfg.limit(t) == 0 {
			return nil, fmt.Errorf("%w: no capacity for %s descriptors", ErrExhausted, t)
		}
		need[t]++
	}

	block := p.blocks[len(p.blocks)-1]
	if !block.fits(p.cfg, need) {
		fresh := newUsage()
		if !p.cfg.Grow || !fresh.fits(p.cfg, need) {
			return nil, fmt.Errorf("%w: descriptor pool (%d sets in %d blocks)", ErrExhausted, len(p.sets), len(p.blocks))
		}
		slogger().Debug("pool: growing descriptor pool", "blocks", len(p.blocks)+1)
		p.blocks = append(p.blocks, fresh)
		block = fresh
	}

	block.sets++
	for t, n := range need {
		block.kinds[t] += n
	}

	set := &DescriptorSet{
		pool:     p,
		pipeline: pipeline,
		layout:   layout,
		entries:  make([]gpucore.DescriptorEntry, len(layout)),
		bound:    make([]bool, len(layout)),
	}
	p.sets = append(p.sets, set)
	return set, nil
}

// Reset destroys every realized set and frees all capacity. The caller must
// know that the device has finished with all of them.
func (p *DescriptorPool) Reset() {
	for _, s := range p.sets {
		if s.handle != nil {
			p.dev.DestroyDescriptorSet(s.handle)
			s.handle = nil
		}
	}
	p.sets = p.sets[:0]
	p.blocks = p.blocks[:1]
	p.blocks[0] = newUsage()
}

// Stats returns the current occupancy.
func (p *DescriptorPool) Stats() DescriptorStats {
	live := 0
	for _, s := range p.sets {
		if s.handle != nil {
			live++
		}
	}
	return DescriptorStats{Blocks: len(p.blocks), Sets: len(p.sets), Live: live}
}

// DescriptorSet collects bindings for one dispatch.
type DescriptorSet struct {
	pool     *DescriptorPool
	pipeline gpucore.Pipeline
	layout   []gpucore.DescriptorType
	entries  []gpucore.DescriptorEntry
	bound    []bool
	handle   gpucore.DescriptorSet
}

// Bind assigns entry to slot. The entry type must match the layout.
func (s *DescriptorSet) Bind(slot int, entry gpucore.DescriptorEntry) error {
	if s.handle != nil {
		return fmt.Errorf("%w: bind after realize", ErrInvalidState)
	}
	if slot < 0 || slot >= len(s.layout) {
		return fmt.Errorf("%w: slot %d out of range [0,%d)", ErrInvalidState, slot, len(s.layout))
	}
	if entry.Type != s.layout[slot] {
		return fmt.Errorf("%w: slot %d expects %s, got %s", ErrInvalidState, slot, s.layout[slot], entry.Type)
	}
	entry.Binding = uint32(slot)
	s.entries[slot] = entry
	s.bound[slot] = true
	return nil
}

// Realize creates the device descriptor set. It is idempotent.
func (s *DescriptorSet) Realize() (gpucore.DescriptorSet, error) {
	if s.handle != nil {
		return s.handle, nil
	}
	for i, ok := range s.bound {
		if !ok {
			return nil, fmt.Errorf("%w: slot %d", ErrUnbound, i)
		}
	}
	h, err := s.pool.dev.CreateDescriptorSet(s.pipeline, s.entries)
	if err != nil {
		return nil, fmt.Errorf("pool: create descriptor set: %w", err)
	}
	s.handle = h
	return h, nil
}
