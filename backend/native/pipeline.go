// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

// Pipeline is a compiled compute pipeline with its layouts.
type Pipeline struct {
	name       string
	key        string
	localSize  gpucore.Extent3D
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	layout     hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// Name returns the kernel name.
func (p *Pipeline) Name() string { return p.name }

// LocalSize returns the work-group size the pipeline was built for.
func (p *Pipeline) LocalSize() gpucore.Extent3D { return p.localSize }

func (p *Pipeline) destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// Pipeline returns the cached pipeline for spec, building it on first use.
// Builds happen under the cache lock, so two callers asking for the same
// spec get the same pipeline.
func (d *Device) Pipeline(spec gpucore.PipelineSpec) (gpucore.Pipeline, error) {
	if spec.Shader == nil {
		return nil, fmt.Errorf("native: %w: no shader", gpucore.ErrInvalidPipelineSpec)
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	key := spec.Key()
	p, err := d.pipelines.GetOrCreate(key, func() (*Pipeline, error) {
		p, err := d.buildPipeline(spec, key)
		if err != nil {
			return nil, err
		}
		slogger().Debug("native: pipeline built",
			"kernel", spec.Shader.Name,
			"local_size", spec.LocalSize.String())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PipelineCount returns the number of cached pipelines.
func (d *Device) PipelineCount() int {
	return d.pipelines.Len()
}

func (d *Device) buildPipeline(spec gpucore.PipelineSpec, key string) (*Pipeline, error) {
	name := spec.Shader.Name
	if err := d.checkLocalSize(spec.LocalSize); err != nil {
		return nil, fmt.Errorf("native: %s: %w", name, err)
	}

	src, err := spec.Render()
	if err != nil {
		return nil, err
	}
	source := hal.ShaderSource{WGSL: src}
	if d.spirv {
		words, err := compileSPIRV(src)
		if err != nil {
			return nil, fmt.Errorf("native: %s: %w", name, err)
		}
		source = hal.ShaderSource{SPIRV: words}
	}

	p := &Pipeline{name: name, key: key, localSize: spec.LocalSize}

	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module %s: %w", name, err)
	}

	entries, err := d.layoutEntries(spec.Shader.Layout)
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: %s: %w", name, err)
	}
	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: create bind group layout %s: %w", name, err)
	}

	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: create pipeline layout %s: %w", name, err)
	}

	p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  name,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: spec.Shader.Entry(),
		},
	})
	if err != nil {
		p.destroy(d.device)
		return nil, fmt.Errorf("native: create compute pipeline %s: %w", name, err)
	}
	return p, nil
}

func (d *Device) checkLocalSize(local gpucore.Extent3D) error {
	if local.IsZero() {
		return fmt.Errorf("native: %w: zero local size %s", gpucore.ErrInvalidPipelineSpec, local)
	}
	l := d.limits
	if local.X > l.MaxComputeWorkgroupSizeX ||
		local.Y > l.MaxComputeWorkgroupSizeY ||
		local.Z > l.MaxComputeWorkgroupSizeZ {
		return fmt.Errorf("%w: %s > %dx%dx%d", ErrWorkgroupTooLarge, local,
			l.MaxComputeWorkgroupSizeX, l.MaxComputeWorkgroupSizeY, l.MaxComputeWorkgroupSizeZ)
	}
	if n := local.Volume(); l.MaxComputeInvocationsPerWorkgroup != 0 && n > uint64(l.MaxComputeInvocationsPerWorkgroup) {
		return fmt.Errorf("%w: %s is %d invocations > %d", ErrWorkgroupTooLarge, local, n, l.MaxComputeInvocationsPerWorkgroup)
	}
	return nil
}

func (d *Device) layoutEntries(layout []gpucore.DescriptorType) ([]gputypes.BindGroupLayoutEntry, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(layout))
	for i, t := range layout {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
		}
		switch t {
		case gpucore.DescriptorTypeUniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case gpucore.DescriptorTypeStorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case gpucore.DescriptorTypeSampledImage:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case gpucore.DescriptorTypeStorageImage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        d.storageFormat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		default:
			return nil, fmt.Errorf("binding %d: unknown descriptor type %s", i, t)
		}
		entries[i] = e
	}
	return entries, nil
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("%w: compile shader: %w", gpucore.ErrInvalidPipelineSpec, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d not a multiple of 4", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
