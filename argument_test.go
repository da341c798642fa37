package compute

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/fakegpu"
)

func TestArgument_Empty(t *testing.T) {
	tests := []struct {
		name string
		args []Argument
		want bool
	}{
		{"none", nil, false},
		{"backed", []Argument{Buffer(fakegpu.NewBuffer("b", 4), gpucore.AccessRead)}, false},
		{"nil argument", []Argument{nil}, true},
		{"nil buffer", []Argument{Buffer(nil, gpucore.AccessRead)}, true},
		{"unbacked buffer", []Argument{Buffer(fakegpu.EmptyBuffer("b"), gpucore.AccessRead)}, true},
		{"unbacked image", []Argument{Image(fakegpu.NewImage("i", 0, 4), gpucore.AccessRead)}, true},
		{"unbacked params", []Argument{Params(fakegpu.EmptyBuffer("p"))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, anyEmpty(tt.args))
		})
	}
}

func TestBindEntries(t *testing.T) {
	out := fakegpu.NewBuffer("out", 64)
	img := fakegpu.NewImage("img", 8, 8)
	params := fakegpu.NewBuffer("params", 32)
	layout := []gpucore.DescriptorType{
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageImage,
		gpucore.DescriptorTypeUniformBuffer,
		gpucore.DescriptorTypeStorageBuffer,
	}

	entries, err := bindEntries(layout, []Argument{
		Buffer(out, gpucore.AccessWrite),
		Image(img, gpucore.AccessReadWrite),
		BindInfo{Buffer: params, Offset: 16},
		BindInfo{Buffer: params, Offset: 8, Range: 8},
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	for i, e := range entries {
		assert.Equal(t, uint32(i), e.Binding)
		assert.Equal(t, layout[i], e.Type)
	}
	assert.Equal(t, uint64(64), entries[0].Range)
	assert.Equal(t, gpucore.AccessWrite, entries[0].Access)
	assert.Same(t, img, entries[1].Image)
	assert.Equal(t, uint64(16), entries[2].Offset)
	assert.Equal(t, uint64(16), entries[2].Range, "zero range extends to the end")
	assert.Equal(t, gpucore.AccessRead, entries[2].Access)
	assert.Equal(t, uint64(8), entries[3].Range)
	assert.Equal(t, gpucore.AccessReadWrite, entries[3].Access)
}

func TestBindEntries_Mismatch(t *testing.T) {
	buf := fakegpu.NewBuffer("b", 16)
	img := fakegpu.NewImage("i", 4, 4)
	tests := []struct {
		name string
		slot gpucore.DescriptorType
		arg  Argument
	}{
		{"writable uniform", gpucore.DescriptorTypeUniformBuffer, Buffer(buf, gpucore.AccessReadWrite)},
		{"writable sampled image", gpucore.DescriptorTypeSampledImage, Image(img, gpucore.AccessWrite)},
		{"buffer in image slot", gpucore.DescriptorTypeStorageImage, Buffer(buf, gpucore.AccessRead)},
		{"params in image slot", gpucore.DescriptorTypeSampledImage, Params(buf)},
		{"offset past end", gpucore.DescriptorTypeUniformBuffer, BindInfo{Buffer: buf, Offset: 17}},
		{"range past end", gpucore.DescriptorTypeUniformBuffer, BindInfo{Buffer: buf, Offset: 8, Range: 9}},
		{"range wraps", gpucore.DescriptorTypeUniformBuffer, BindInfo{Buffer: buf, Offset: 8, Range: math.MaxUint64 - 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bindEntries([]gpucore.DescriptorType{tt.slot}, []Argument{tt.arg})
			assert.ErrorIs(t, err, ErrArgumentMismatch)
		})
	}
}
