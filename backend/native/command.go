// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

// CommandBuffer records into a HAL command encoder. Every dispatch is
// encoded in its own compute pass, so storage writes of one dispatch are
// visible to the next without an explicit buffer barrier.
//
// Recording errors are sticky: the first one is kept and returned by End.
type CommandBuffer struct {
	dev   *Device
	label string

	encoder  hal.CommandEncoder
	cmd      hal.CommandBuffer
	reusable bool

	pipeline *Pipeline
	set      *bindGroup
	err      error

	dispatches int
}

// Begin creates the HAL encoder and starts recording.
func (c *CommandBuffer) Begin(reusable bool) error {
	if c.encoder != nil {
		return fmt.Errorf("native: begin %s: already recording", c.label)
	}
	c.release()

	encoder, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: c.label,
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(c.label); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	c.encoder = encoder
	c.reusable = reusable
	c.err = nil
	c.dispatches = 0
	return nil
}

// BindPipeline sets the pipeline of the next dispatch.
func (c *CommandBuffer) BindPipeline(p gpucore.Pipeline) {
	pl, ok := p.(*Pipeline)
	if !ok {
		c.setErr(fmt.Errorf("%w: pipeline %T", ErrForeignHandle, p))
		return
	}
	c.pipeline = pl
}

// BindDescriptorSet sets the bind group of the next dispatch.
func (c *CommandBuffer) BindDescriptorSet(set gpucore.DescriptorSet) {
	bg, ok := set.(*bindGroup)
	if !ok {
		c.setErr(fmt.Errorf("%w: descriptor set %T", ErrForeignHandle, set))
		return
	}
	c.set = bg
}

// InsertBarrier records image layout changes as texture transitions.
// Execution and buffer barriers need nothing beyond the pass boundary.
func (c *CommandBuffer) InsertBarrier(b gpucore.Barrier) {
	if !c.recording() || len(b.Images) == 0 {
		return
	}
	barriers := make([]hal.TextureBarrier, 0, len(b.Images))
	for _, ib := range b.Images {
		img, ok := ib.Image.(*Image)
		if !ok {
			c.setErr(fmt.Errorf("%w: image %T", ErrForeignHandle, ib.Image))
			return
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: img.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: layoutUsage(ib.OldLayout),
				NewUsage: layoutUsage(ib.NewLayout),
			},
		})
	}
	c.encoder.TransitionTextures(barriers)
}

// layoutUsage maps an image layout to the texture usage it corresponds to.
func layoutUsage(l gpucore.ImageLayout) gputypes.TextureUsage {
	switch l {
	case gpucore.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case gpucore.LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case gpucore.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case gpucore.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return 0
	}
}

// Dispatch encodes one compute pass with the bound pipeline and set.
func (c *CommandBuffer) Dispatch(groups gpucore.Extent3D) {
	if !c.recording() {
		return
	}
	if c.pipeline == nil || c.set == nil {
		c.setErr(fmt.Errorf("native: %s: dispatch without bound pipeline and descriptor set", c.label))
		return
	}
	pass := c.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: c.pipeline.name,
	})
	pass.SetPipeline(c.pipeline.pipeline)
	pass.SetBindGroup(0, c.set.group, nil)
	pass.Dispatch(groups.X, groups.Y, groups.Z)
	pass.End()
	c.dispatches++

	slogger().Debug("native: dispatched",
		"kernel", c.pipeline.name,
		"groups", groups.String())
}

// WriteTimestamp is not supported and records nothing. The runtime never
// calls it because CreateQueryPool fails.
func (c *CommandBuffer) WriteTimestamp(gpucore.QueryPool, uint32) {
	c.setErr(ErrTimestampsUnsupported)
}

// ResetQueries is not supported.
func (c *CommandBuffer) ResetQueries(gpucore.QueryPool, uint32, uint32) {
	c.setErr(ErrTimestampsUnsupported)
}

// End finishes encoding. The first recording error, if any, is returned and
// the encoding is discarded.
func (c *CommandBuffer) End() error {
	if c.encoder == nil {
		return fmt.Errorf("native: end %s: %w", c.label, ErrNotRecording)
	}
	encoder := c.encoder
	c.encoder = nil
	c.pipeline, c.set = nil, nil

	if c.err != nil {
		encoder.DiscardEncoding()
		err := c.err
		c.err = nil
		return fmt.Errorf("native: record %s: %w", c.label, err)
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	c.cmd = cmd
	return nil
}

// Reset frees the recorded HAL command buffer and abandons any open
// encoding.
func (c *CommandBuffer) Reset() error {
	if c.encoder != nil {
		c.encoder.DiscardEncoding()
		c.encoder = nil
	}
	c.release()
	c.pipeline, c.set = nil, nil
	c.err = nil
	c.dispatches = 0
	return nil
}

// Dispatches returns the number of dispatches recorded since Begin.
func (c *CommandBuffer) Dispatches() int { return c.dispatches }

func (c *CommandBuffer) release() {
	if c.cmd != nil {
		c.dev.device.FreeCommandBuffer(c.cmd)
		c.cmd = nil
	}
}

func (c *CommandBuffer) recording() bool {
	if c.encoder == nil {
		c.setErr(ErrNotRecording)
		return false
	}
	return c.err == nil
}

func (c *CommandBuffer) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}
