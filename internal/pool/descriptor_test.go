package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/fakegpu"
)

var twoStorage = []gpucore.DescriptorType{
	gpucore.DescriptorTypeStorageBuffer,
	gpucore.DescriptorTypeStorageBuffer,
}

func testPipeline(t *testing.T, dev *fakegpu.Device) gpucore.Pipeline {
	t.Helper()
	p, err := dev.Pipeline(gpucore.PipelineSpec{
		Shader:    &gpucore.ShaderInfo{Name: "copy", Layout: twoStorage},
		LocalSize: gpucore.Extent3D{X: 64, Y: 1, Z: 1},
	})
	require.NoError(t, err)
	return p
}

func storageEntry(buf gpucore.Buffer) gpucore.DescriptorEntry {
	return gpucore.DescriptorEntry{
		Type:   gpucore.DescriptorTypeStorageBuffer,
		Access: gpucore.AccessReadWrite,
		Buffer: buf,
		Range:  buf.Size(),
	}
}

func TestDescriptorPool_AcquireBindRealize(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 4, StorageBuffers: 8})
	pl := testPipeline(t, dev)

	set, err := p.Acquire(pl, twoStorage)
	require.NoError(t, err)

	_, err = set.Realize()
	assert.ErrorIs(t, err, ErrUnbound)

	a, b := fakegpu.NewBuffer("a", 16), fakegpu.NewBuffer("b", 16)
	require.NoError(t, set.Bind(0, storageEntry(a)))
	require.NoError(t, set.Bind(1, storageEntry(b)))

	h, err := set.Realize()
	require.NoError(t, err)
	ds := h.(*fakegpu.DescriptorSet)
	require.Len(t, ds.Entries, 2)
	assert.Equal(t, uint32(1), ds.Entries[1].Binding)
	assert.Same(t, b, ds.Entries[1].Buffer)

	again, err := set.Realize()
	require.NoError(t, err)
	assert.Same(t, ds, again)
	assert.Equal(t, DescriptorStats{Blocks: 1, Sets: 1, Live: 1}, p.Stats())
}

func TestDescriptorSet_BindValidation(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 1, StorageBuffers: 2})
	set, err := p.Acquire(testPipeline(t, dev), twoStorage)
	require.NoError(t, err)

	buf := fakegpu.NewBuffer("a", 4)
	assert.ErrorIs(t, set.Bind(2, storageEntry(buf)), ErrInvalidState)

	wrong := storageEntry(buf)
	wrong.Type = gpucore.DescriptorTypeUniformBuffer
	assert.ErrorIs(t, set.Bind(0, wrong), ErrInvalidState)
}

func TestDescriptorPool_ExhaustedWithoutGrow(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 2, StorageBuffers: 3})
	pl := testPipeline(t, dev)

	_, err := p.Acquire(pl, twoStorage)
	require.NoError(t, err)
	_, err = p.Acquire(pl, twoStorage)
	assert.ErrorIs(t, err, ErrExhausted, "third and fourth storage descriptors exceed the block")
}

func TestDescriptorPool_GrowAddsBlocks(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 1, StorageBuffers: 2, Grow: true})
	pl := testPipeline(t, dev)

	for range 3 {
		_, err := p.Acquire(pl, twoStorage)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, p.Stats().Blocks)

	tooBig := []gpucore.DescriptorType{
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageBuffer,
	}
	_, err := p.Acquire(pl, tooBig)
	assert.ErrorIs(t, err, ErrExhausted, "a request larger than one block never fits")
}

func TestDescriptorPool_UnsupportedType(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 8, StorageBuffers: 8, Grow: true})

	_, err := p.Acquire(testPipeline(t, dev), []gpucore.DescriptorType{gpucore.DescriptorTypeSampledImage})
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestDescriptorPool_ResetDestroysSets(t *testing.T) {
	dev := fakegpu.New()
	p := NewDescriptorPool(dev, DescriptorConfig{MaxSets: 1, StorageBuffers: 2, Grow: true})
	pl := testPipeline(t, dev)

	for range 2 {
		set, err := p.Acquire(pl, twoStorage)
		require.NoError(t, err)
		buf := fakegpu.NewBuffer("x", 8)
		require.NoError(t, set.Bind(0, storageEntry(buf)))
		require.NoError(t, set.Bind(1, storageEntry(buf)))
		_, err = set.Realize()
		require.NoError(t, err)
	}
	require.Equal(t, 2, dev.LiveDescriptorSets())

	p.Reset()
	assert.Equal(t, 0, dev.LiveDescriptorSets())
	assert.Equal(t, DescriptorStats{Blocks: 1}, p.Stats())

	_, err := p.Acquire(pl, twoStorage)
	require.NoError(t, err, "capacity is free again after reset")
}
