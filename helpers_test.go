package compute

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/fakegpu"
)

var addShader = gpucore.ShaderInfo{
	Name: "add",
	Source: `@compute @workgroup_size({{.LocalSize.X}}, 1, 1)
fn main() {}`,
	Layout: []gpucore.DescriptorType{
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeStorageBuffer,
		gpucore.DescriptorTypeUniformBuffer,
	},
}

func newTestRuntime(t *testing.T, opts ...Option) (*Runtime, *fakegpu.Device) {
	t.Helper()
	dev := fakegpu.New()
	rt, err := New(dev, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, dev
}

// addJob returns a job over freshly allocated buffers.
func addJob(id uint32) Job {
	return Job{
		Shader:     &addShader,
		GlobalSize: gpucore.Extent3D{X: 1000, Y: 1, Z: 1},
		LocalSize:  gpucore.Extent3D{X: 64, Y: 1, Z: 1},
		DispatchID: id,
		Args: []Argument{
			Buffer(fakegpu.NewBuffer("out", 4000), gpucore.AccessWrite),
			Buffer(fakegpu.NewBuffer("in", 4000), gpucore.AccessRead),
			Params(fakegpu.NewBuffer("params", 16)),
		},
	}
}

// emptyJob returns a job whose input buffer has no backing memory.
func emptyJob() Job {
	j := addJob(0)
	j.Args[1] = Buffer(fakegpu.EmptyBuffer("in"), gpucore.AccessRead)
	return j
}

func dispatchCount(subs []fakegpu.Submission) int {
	n := 0
	for _, s := range subs {
		n += s.Dispatches
	}
	return n
}
