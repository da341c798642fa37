package gpucore

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestWorkGroupCount(t *testing.T) {
	tests := []struct {
		name          string
		global, local Extent3D
		want          Extent3D
	}{
		{"exact", Extent3D{64, 8, 1}, Extent3D{64, 8, 1}, Extent3D{1, 1, 1}},
		{"rounds up", Extent3D{65, 9, 2}, Extent3D{64, 8, 1}, Extent3D{2, 2, 2}},
		{"zero local treated as one", Extent3D{3, 4, 5}, Extent3D{}, Extent3D{3, 4, 5}},
		{"zero global", Extent3D{0, 1, 1}, Extent3D{4, 1, 1}, Extent3D{0, 1, 1}},
		{"max global", Extent3D{math.MaxUint32, math.MaxUint32, 1}, Extent3D{64, 1, 1}, Extent3D{1 << 26, math.MaxUint32, 1}},
		{"max global and local", Extent3D{math.MaxUint32, 1, 1}, Extent3D{math.MaxUint32, 1, 1}, Extent3D{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorkGroupCount(tt.global, tt.local); got != tt.want {
				t.Errorf("WorkGroupCount(%v, %v) = %v, want %v", tt.global, tt.local, got, tt.want)
			}
		})
	}
}

func TestExtentVolume(t *testing.T) {
	if got := (Extent3D{4, 3, 2}).Volume(); got != 24 {
		t.Errorf("Volume() = %d, want 24", got)
	}
	big := Extent3D{math.MaxUint32, math.MaxUint32, 1}
	if got, want := big.Volume(), uint64(math.MaxUint32)*math.MaxUint32; got != want {
		t.Errorf("Volume() = %d, want %d", got, want)
	}
}

func TestSpecConstantLiteral(t *testing.T) {
	tests := []struct {
		c    SpecConstant
		want string
	}{
		{SpecUint("n", 7), "7u"},
		{SpecInt("n", -3), "-3i"},
		{SpecFloat("f", 2), "2.0"},
		{SpecFloat("f", 0.5), "0.5"},
		{SpecBool("b", true), "true"},
		{SpecBool("b", false), "false"},
	}
	for _, tt := range tests {
		if got := tt.c.Literal(); got != tt.want {
			t.Errorf("Literal() = %q, want %q", got, tt.want)
		}
	}
}

func TestPipelineSpecKey(t *testing.T) {
	shader := &ShaderInfo{Name: "add"}
	a := PipelineSpec{Shader: shader, LocalSize: Extent3D{64, 1, 1}}
	b := PipelineSpec{Shader: shader, LocalSize: Extent3D{32, 1, 1}}
	c := PipelineSpec{Shader: shader, LocalSize: Extent3D{64, 1, 1}, SpecConstants: []SpecConstant{SpecUint("n", 1)}}

	if a.Key() == b.Key() {
		t.Error("different local sizes must give different keys")
	}
	if a.Key() == c.Key() {
		t.Error("spec constants must be part of the key")
	}
	if a.Key() != (PipelineSpec{Shader: shader, LocalSize: Extent3D{64, 1, 1}}).Key() {
		t.Error("equal specs must give equal keys")
	}
}

func TestPipelineSpecRender(t *testing.T) {
	shader := &ShaderInfo{
		Name: "scale",
		Source: `const factor = {{index .Spec "factor"}};
@compute @workgroup_size({{.LocalSize.X}}, {{.LocalSize.Y}}, {{.LocalSize.Z}})
fn main() {}`,
	}
	spec := PipelineSpec{
		Shader:        shader,
		LocalSize:     Extent3D{64, 1, 1},
		SpecConstants: []SpecConstant{SpecFloat("factor", 1.5)},
	}

	src, err := spec.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(src, "@workgroup_size(64, 1, 1)") {
		t.Errorf("local size not substituted:\n%s", src)
	}
	if !strings.Contains(src, "const factor = 1.5;") {
		t.Errorf("spec constant not substituted:\n%s", src)
	}
}

func TestPipelineSpecRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		spec PipelineSpec
	}{
		{"no shader", PipelineSpec{}},
		{"malformed template", PipelineSpec{Shader: &ShaderInfo{Name: "bad", Source: "{{.Missing"}}},
		{"missing constant", PipelineSpec{Shader: &ShaderInfo{Name: "bad", Source: "{{.Spec.k}}"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.spec.Render(); !errors.Is(err, ErrInvalidPipelineSpec) {
				t.Errorf("Render() error = %v, want ErrInvalidPipelineSpec", err)
			}
		})
	}
}

func TestBarrierEmpty(t *testing.T) {
	var nilBarrier *Barrier
	if !nilBarrier.Empty() {
		t.Error("nil barrier should be empty")
	}
	if !(&Barrier{}).Empty() {
		t.Error("zero barrier should be empty")
	}
	b := NewBarrier(StageCompute, StageCompute)
	if b.Empty() {
		t.Error("barrier between stages should not be empty")
	}
	b = &Barrier{}
	b.AddBuffer(nil, AccessWrite, AccessRead)
	if b.Empty() {
		t.Error("barrier with a buffer entry should not be empty")
	}
}
