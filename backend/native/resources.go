package native

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

// readbackTimeout bounds the fence wait of ReadBuffer.
const readbackTimeout = 5 * time.Second

// Buffer is a HAL buffer. The zero-size buffer has no backing memory and
// binds as an empty argument.
type Buffer struct {
	buf   hal.Buffer
	size  uint64
	label string
}

// Empty reports whether the buffer has no backing memory.
func (b *Buffer) Empty() bool { return b == nil || b.buf == nil }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	if b == nil {
		return 0
	}
	return b.size
}

// HAL returns the underlying HAL buffer, nil for an empty buffer.
func (b *Buffer) HAL() hal.Buffer { return b.buf }

// Image is a 2D HAL texture with a full view.
type Image struct {
	tex    hal.Texture
	view   hal.TextureView
	extent gpucore.Extent3D
	format gputypes.TextureFormat
}

// Empty reports whether the image has no backing memory.
func (i *Image) Empty() bool { return i == nil || i.tex == nil }

// Extent returns the image dimensions.
func (i *Image) Extent() gpucore.Extent3D {
	if i == nil {
		return gpucore.Extent3D{}
	}
	return i.extent
}

// Format returns the texel format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

// BufferUsage is the default usage of compute buffers.
const BufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// CreateBuffer allocates a buffer. A zero size returns an empty buffer
// without touching the device. A zero usage means BufferUsage.
func (d *Device) CreateBuffer(label string, size uint64, usage gputypes.BufferUsage) (*Buffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if size == 0 {
		return &Buffer{label: label}, nil
	}
	if d.limits.MaxBufferSize != 0 && size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("native: buffer %s size %d exceeds limit %d", label, size, d.limits.MaxBufferSize)
	}
	if usage == 0 {
		usage = BufferUsage
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer %s: %w", label, err)
	}
	return &Buffer{buf: buf, size: size, label: label}, nil
}

// WriteBuffer uploads data at offset through the queue.
func (d *Device) WriteBuffer(b *Buffer, offset uint64, data []byte) error {
	if b.Empty() {
		return fmt.Errorf("native: write to empty buffer %s", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("native: write of %d bytes at %d overflows buffer %s (%d bytes)",
			len(data), offset, b.label, b.size)
	}
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// ReadBuffer copies the buffer contents into dst through a staging buffer
// and waits for the copy. Work that writes b must have been submitted
// before; the queue runs it ahead of the copy.
func (d *Device) ReadBuffer(b *Buffer, dst []byte) error {
	if b.Empty() {
		return fmt.Errorf("native: read from empty buffer %s", b.label)
	}
	size := uint64(len(dst))
	if size > b.size {
		size = b.size
	}
	if size == 0 {
		return nil
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label + "_readback"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(b.label + "_readback"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("native: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	d.queue.mu.Lock()
	err = d.queue.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1)
	d.queue.mu.Unlock()
	if err != nil {
		return fmt.Errorf("native: submit readback: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, readbackTimeout)
	if err != nil {
		return fmt.Errorf("native: wait for readback: %w", err)
	}
	if !ok {
		return fmt.Errorf("native: readback timeout after %v", readbackTimeout)
	}
	if err := d.queue.queue.ReadBuffer(staging, 0, dst[:size]); err != nil {
		return fmt.Errorf("native: readback: %w", err)
	}
	return nil
}

// ImageUsage is the default usage of compute images.
const ImageUsage = gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst

// CreateImage allocates a 2D image and its view. A zero format means the
// storage image format of the device. A zero width or height returns an
// empty image.
func (d *Device) CreateImage(label string, width, height uint32, format gputypes.TextureFormat) (*Image, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	extent := gpucore.Extent3D{X: width, Y: height, Z: 1}
	if width == 0 || height == 0 {
		return &Image{extent: extent}, nil
	}
	if format == 0 {
		format = d.storageFormat
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         ImageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create texture view %s: %w", label, err)
	}
	return &Image{tex: tex, view: view, extent: extent, format: format}, nil
}

// DestroyBuffer destroys a buffer created by CreateBuffer.
func (d *Device) DestroyBuffer(b gpucore.Buffer) {
	buf, ok := b.(*Buffer)
	if !ok || buf.buf == nil {
		return
	}
	d.device.DestroyBuffer(buf.buf)
	buf.buf = nil
}

// DestroyImage destroys an image created by CreateImage.
func (d *Device) DestroyImage(img gpucore.Image) {
	im, ok := img.(*Image)
	if !ok || im.tex == nil {
		return
	}
	if im.view != nil {
		d.device.DestroyTextureView(im.view)
		im.view = nil
	}
	d.device.DestroyTexture(im.tex)
	im.tex = nil
}
