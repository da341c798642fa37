package gpucore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
)

// DefaultEntryPoint is used when ShaderInfo.EntryPoint is empty.
const DefaultEntryPoint = "main"

// ShaderInfo describes one compute kernel.
//
// Name identifies the kernel in caches and diagnostics, so two kernels with
// different sources must not share a name. Layout lists the descriptor type
// of every binding slot in argument order.
//
// Source is WGSL in text/template syntax. It is executed with a value that
// has the fields LocalSize ([Extent3D]), Spec (map from constant name to a
// WGSL literal) and Name, for example:
//
//	@compute @workgroup_size({{.LocalSize.X}}, {{.LocalSize.Y}}, {{.LocalSize.Z}})
type ShaderInfo struct {
	Name       string
	Source     string
	EntryPoint string
	Layout     []DescriptorType
}

// Entry returns the entry point name.
func (s *ShaderInfo) Entry() string {
	if s.EntryPoint == "" {
		return DefaultEntryPoint
	}
	return s.EntryPoint
}

// SpecKind is the scalar type of a specialization constant.
type SpecKind uint8

// Specialization constant kinds.
const (
	SpecKindUint SpecKind = iota
	SpecKindInt
	SpecKindFloat
	SpecKindBool
)

// SpecConstant is a named scalar baked into a pipeline at creation time.
// The value is stored as 32 raw bits.
type SpecConstant struct {
	Name string
	Kind SpecKind
	Bits uint32
}

// SpecUint returns an unsigned integer constant.
func SpecUint(name string, v uint32) SpecConstant {
	return SpecConstant{Name: name, Kind: SpecKindUint, Bits: v}
}

// SpecInt returns a signed integer constant.
func SpecInt(name string, v int32) SpecConstant {
	return SpecConstant{Name: name, Kind: SpecKindInt, Bits: uint32(v)}
}

// SpecFloat returns a 32-bit float constant.
func SpecFloat(name string, v float32) SpecConstant {
	return SpecConstant{Name: name, Kind: SpecKindFloat, Bits: math.Float32bits(v)}
}

// SpecBool returns a boolean constant.
func SpecBool(name string, v bool) SpecConstant {
	c := SpecConstant{Name: name, Kind: SpecKindBool}
	if v {
		c.Bits = 1
	}
	return c
}

// Literal formats the constant as a WGSL literal.
func (c SpecConstant) Literal() string {
	switch c.Kind {
	case SpecKindInt:
		return strconv.FormatInt(int64(int32(c.Bits)), 10) + "i"
	case SpecKindFloat:
		s := strconv.FormatFloat(float64(math.Float32frombits(c.Bits)), 'g', -1, 32)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case SpecKindBool:
		if c.Bits != 0 {
			return "true"
		}
		return "false"
	default:
		return strconv.FormatUint(uint64(c.Bits), 10) + "u"
	}
}

// PipelineSpec is everything a backend needs to build or look up a pipeline.
type PipelineSpec struct {
	Shader        *ShaderInfo
	LocalSize     Extent3D
	SpecConstants []SpecConstant
}

// Key returns a string that is equal for two specs exactly when they
// produce the same pipeline.
func (p PipelineSpec) Key() string {
	var b strings.Builder
	b.WriteString(p.Shader.Name)
	fmt.Fprintf(&b, "|%d,%d,%d", p.LocalSize.X, p.LocalSize.Y, p.LocalSize.Z)
	for _, c := range p.SpecConstants {
		fmt.Fprintf(&b, "|%s=%d:%d", c.Name, c.Kind, c.Bits)
	}
	return b.String()
}

type shaderTemplateData struct {
	Name      string
	LocalSize Extent3D
	Spec      map[string]string
}

// Render executes the shader source template for this spec. Errors wrap
// [ErrInvalidPipelineSpec].
func (p PipelineSpec) Render() (string, error) {
	if p.Shader == nil {
		return "", fmt.Errorf("%w: no shader", ErrInvalidPipelineSpec)
	}
	tmpl, err := template.New(p.Shader.Name).Option("missingkey=error").Parse(p.Shader.Source)
	if err != nil {
		return "", fmt.Errorf("%w: parse shader %q: %w", ErrInvalidPipelineSpec, p.Shader.Name, err)
	}

	data := shaderTemplateData{
		Name:      p.Shader.Name,
		LocalSize: p.LocalSize,
		Spec:      make(map[string]string, len(p.SpecConstants)),
	}
	for _, c := range p.SpecConstants {
		data.Spec[c.Name] = c.Literal()
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("%w: render shader %q: %w", ErrInvalidPipelineSpec, p.Shader.Name, err)
	}
	return out.String(), nil
}
