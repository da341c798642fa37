package gpucore

import "fmt"

// DescriptorType is the kind of resource a shader slot expects.
type DescriptorType uint8

// Descriptor types.
const (
	// DescriptorTypeUniformBuffer is a read-only uniform buffer slot.
	DescriptorTypeUniformBuffer DescriptorType = iota + 1

	// DescriptorTypeStorageBuffer is a read-write storage buffer slot.
	DescriptorTypeStorageBuffer

	// DescriptorTypeStorageImage is a read-write storage image slot.
	DescriptorTypeStorageImage

	// DescriptorTypeSampledImage is a read-only sampled image slot.
	DescriptorTypeSampledImage
)

// String returns the descriptor type name.
func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	default:
		return fmt.Sprintf("DescriptorType(%d)", uint8(t))
	}
}

// IsBuffer reports whether slots of this type take a buffer.
func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorTypeUniformBuffer || t == DescriptorTypeStorageBuffer
}

// IsImage reports whether slots of this type take an image.
func (t DescriptorType) IsImage() bool {
	return t == DescriptorTypeStorageImage || t == DescriptorTypeSampledImage
}

// Access describes how a shader touches a bound resource.
type Access uint8

// Access flags.
const (
	AccessRead  Access = 1 << 0
	AccessWrite Access = 1 << 1

	AccessReadWrite = AccessRead | AccessWrite
)

// Writes reports whether the access includes writing.
func (a Access) Writes() bool { return a&AccessWrite != 0 }

// String returns a compact form such as "rw".
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessReadWrite:
		return "rw"
	default:
		return "-"
	}
}

// Extent3D is a three-dimensional size. It is used for global work sizes,
// local work-group sizes, work-group counts and image extents.
type Extent3D struct {
	X, Y, Z uint32
}

// Volume returns X*Y*Z.
func (e Extent3D) Volume() uint64 {
	return uint64(e.X) * uint64(e.Y) * uint64(e.Z)
}

// IsZero reports whether any component is zero.
func (e Extent3D) IsZero() bool {
	return e.X == 0 || e.Y == 0 || e.Z == 0
}

// String formats the extent as "XxYxZ".
func (e Extent3D) String() string {
	return fmt.Sprintf("%dx%dx%d", e.X, e.Y, e.Z)
}

// WorkGroupCount returns the number of work groups needed to cover global
// with groups of size local, rounding up on every axis. A zero local
// component is treated as 1.
func WorkGroupCount(global, local Extent3D) Extent3D {
	return Extent3D{
		X: ceilDiv(global.X, local.X),
		Y: ceilDiv(global.Y, local.Y),
		Z: ceilDiv(global.Z, local.Z),
	}
}

func ceilDiv(n, d uint32) uint32 {
	if d == 0 {
		d = 1
	}
	return n/d + min(n%d, 1)
}

// Buffer is a device memory buffer owned outside the runtime.
type Buffer interface {
	// Empty reports whether the buffer has no backing memory.
	Empty() bool

	// Size returns the buffer size in bytes.
	Size() uint64
}

// Image is a device image owned outside the runtime.
type Image interface {
	// Empty reports whether the image has no backing memory.
	Empty() bool

	// Extent returns the image dimensions.
	Extent() Extent3D
}

// DescriptorEntry binds one resource to one descriptor slot.
// Exactly one of Buffer or Image is set, matching Type.
type DescriptorEntry struct {
	Binding uint32
	Type    DescriptorType
	Access  Access

	Buffer Buffer
	Offset uint64
	Range  uint64

	Image Image
}

// Opaque backend handles.
type (
	// Pipeline is a compiled compute pipeline returned by [Device.Pipeline].
	Pipeline any

	// DescriptorSet is a realized binding table.
	DescriptorSet any

	// Fence is a host-observable completion signal.
	Fence any

	// QueryPool is a device-side ring of timestamp slots.
	QueryPool any
)
