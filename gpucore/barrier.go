package gpucore

// PipelineStage identifies where in the device pipeline an access happens.
type PipelineStage uint8

// Pipeline stages.
const (
	StageCompute PipelineStage = 1 << iota
	StageTransfer
	StageHost
)

// ImageLayout is the memory layout an image is kept in between uses.
type ImageLayout uint8

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
)

// BufferBarrier orders accesses to one buffer.
type BufferBarrier struct {
	Buffer Buffer
	Src    Access
	Dst    Access
}

// ImageBarrier orders accesses to one image and optionally changes its layout.
type ImageBarrier struct {
	Image     Image
	Src       Access
	Dst       Access
	OldLayout ImageLayout
	NewLayout ImageLayout
}

// Barrier is a pipeline barrier recorded ahead of a dispatch.
type Barrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Buffers  []BufferBarrier
	Images   []ImageBarrier
}

// NewBarrier returns an execution barrier between the given stages.
func NewBarrier(src, dst PipelineStage) *Barrier {
	return &Barrier{SrcStage: src, DstStage: dst}
}

// AddBuffer appends a buffer barrier and returns b for chaining.
func (b *Barrier) AddBuffer(buf Buffer, src, dst Access) *Barrier {
	b.Buffers = append(b.Buffers, BufferBarrier{Buffer: buf, Src: src, Dst: dst})
	return b
}

// AddImage appends an image barrier and returns b for chaining.
func (b *Barrier) AddImage(img Image, src, dst Access, oldLayout, newLayout ImageLayout) *Barrier {
	b.Images = append(b.Images, ImageBarrier{
		Image:     img,
		Src:       src,
		Dst:       dst,
		OldLayout: oldLayout,
		NewLayout: newLayout,
	})
	return b
}

// Empty reports whether the barrier carries nothing to record. A nil or
// zero barrier is empty; a barrier with stages but no resources is an
// execution barrier and is not.
func (b *Barrier) Empty() bool {
	return b == nil ||
		(b.SrcStage == 0 && b.DstStage == 0 && len(b.Buffers) == 0 && len(b.Images) == 0)
}
