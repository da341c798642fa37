package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// Argument is one shader argument. The set of implementations is closed:
// [BufferArg], [ImageArg] and [BindInfo].
type Argument interface {
	// empty reports whether the argument has no backing memory.
	empty() bool
	// entry builds the descriptor entry for a slot of type t.
	entry(t gpucore.DescriptorType) (gpucore.DescriptorEntry, error)
}

// BufferArg binds a whole buffer.
type BufferArg struct {
	Buffer gpucore.Buffer
	Access gpucore.Access
}

// Buffer returns a BufferArg.
func Buffer(b gpucore.Buffer, access gpucore.Access) BufferArg {
	return BufferArg{Buffer: b, Access: access}
}

func (a BufferArg) empty() bool {
	return a.Buffer == nil || a.Buffer.Empty()
}

func (a BufferArg) entry(t gpucore.DescriptorType) (gpucore.DescriptorEntry, error) {
	if !t.IsBuffer() {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: buffer bound to %s slot", ErrArgumentMismatch, t)
	}
	if t == gpucore.DescriptorTypeUniformBuffer && a.Access.Writes() {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: uniform buffer bound with write access", ErrArgumentMismatch)
	}
	return gpucore.DescriptorEntry{
		Type:   t,
		Access: a.Access,
		Buffer: a.Buffer,
		Range:  a.Buffer.Size(),
	}, nil
}

// ImageArg binds an image.
type ImageArg struct {
	Image  gpucore.Image
	Access gpucore.Access
}

// Image returns an ImageArg.
func Image(img gpucore.Image, access gpucore.Access) ImageArg {
	return ImageArg{Image: img, Access: access}
}

func (a ImageArg) empty() bool {
	return a.Image == nil || a.Image.Empty()
}

func (a ImageArg) entry(t gpucore.DescriptorType) (gpucore.DescriptorEntry, error) {
	if !t.IsImage() {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: image bound to %s slot", ErrArgumentMismatch, t)
	}
	if t == gpucore.DescriptorTypeSampledImage && a.Access.Writes() {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: sampled image bound with write access", ErrArgumentMismatch)
	}
	return gpucore.DescriptorEntry{Type: t, Access: a.Access, Image: a.Image}, nil
}

// BindInfo binds a byte range of a buffer, typically a block of scalar
// parameters. A zero Range extends to the end of the buffer.
type BindInfo struct {
	Buffer gpucore.Buffer
	Offset uint64
	Range  uint64
}

// Params returns a BindInfo over the whole of b.
func Params(b gpucore.Buffer) BindInfo {
	return BindInfo{Buffer: b}
}

func (a BindInfo) empty() bool {
	return a.Buffer == nil || a.Buffer.Empty()
}

func (a BindInfo) entry(t gpucore.DescriptorType) (gpucore.DescriptorEntry, error) {
	if !t.IsBuffer() {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: bind info bound to %s slot", ErrArgumentMismatch, t)
	}
	size := a.Buffer.Size()
	if a.Offset > size {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: offset %d beyond buffer size %d", ErrArgumentMismatch, a.Offset, size)
	}
	rng := a.Range
	if rng == 0 {
		rng = size - a.Offset
	}
	if rng > size-a.Offset {
		return gpucore.DescriptorEntry{}, fmt.Errorf("%w: range %d+%d beyond buffer size %d", ErrArgumentMismatch, a.Offset, rng, size)
	}
	access := gpucore.AccessRead
	if t == gpucore.DescriptorTypeStorageBuffer {
		access = gpucore.AccessReadWrite
	}
	return gpucore.DescriptorEntry{
		Type:   t,
		Access: access,
		Buffer: a.Buffer,
		Offset: a.Offset,
		Range:  rng,
	}, nil
}

// anyEmpty reports whether any argument is nil or has no backing memory.
func anyEmpty(args []Argument) bool {
	for _, a := range args {
		if a == nil || a.empty() {
			return true
		}
	}
	return false
}

// bindEntries checks args against layout and returns one entry per slot.
func bindEntries(layout []gpucore.DescriptorType, args []Argument) ([]gpucore.DescriptorEntry, error) {
	if len(args) != len(layout) {
		return nil, fmt.Errorf("%w: %d arguments for %d slots", ErrArgumentMismatch, len(args), len(layout))
	}
	entries := make([]gpucore.DescriptorEntry, len(args))
	for i, a := range args {
		e, err := a.entry(layout[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		e.Binding = uint32(i)
		entries[i] = e
	}
	return entries, nil
}
