package builder

import (
	"fmt"
	"strings"
)

// DataType selects the device representation of reals and indices
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// Size returns the byte width of one value
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// MaxInner bounds the @inner loop of generated kernels
const MaxInner = 256

// AlignmentType is the byte boundary each partition starts on
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
)

// ArraySpec describes one partitioned device array. Every partition holds
// K[part] values.
type ArraySpec struct {
	Name      string
	Alignment AlignmentType
	IsOutput  bool
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int
	FloatType DataType
	IntType   DataType
}

// Builder generates OKL source for kernels that sweep partitioned arrays,
// one @outer iteration per partition
type Builder struct {
	NumPartitions int
	K             []int
	KpartMax      int

	FloatType DataType
	IntType   DataType

	Arrays         []ArraySpec
	KernelPreamble string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}
	kpartMax := 0
	for _, k := range cfg.K {
		if k > kpartMax {
			kpartMax = k
		}
	}
	kb := &Builder{
		NumPartitions: len(cfg.K),
		K:             append([]int(nil), cfg.K...),
		KpartMax:      kpartMax,
		FloatType:     cfg.FloatType,
		IntType:       cfg.IntType,
	}
	if kb.FloatType == 0 {
		kb.FloatType = Float64
	}
	if kb.IntType == 0 {
		kb.IntType = INT64
	}
	return kb
}

// AddArray registers a partitioned array; order fixes the kernel signature
func (kb *Builder) AddArray(spec ArraySpec) {
	kb.Arrays = append(kb.Arrays, spec)
}

// GetTotalElements returns sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// CalculateAlignedOffsetsAndSize computes the start of every partition in
// values, plus a final entry for bounds checking, and the total byte size
func (kb *Builder) CalculateAlignedOffsetsAndSize(spec ArraySpec) ([]int64, int64) {
	offsets := make([]int64, kb.NumPartitions+1)
	valueSize := kb.FloatType.Size()
	alignment := int64(spec.Alignment)
	if alignment == 0 {
		alignment = int64(NoAlignment)
	}

	align := func(b int64) int64 {
		return ((b + alignment - 1) / alignment) * alignment
	}
	current := int64(0)
	for i := 0; i < kb.NumPartitions; i++ {
		current = align(current)
		offsets[i] = current / valueSize
		current += int64(kb.K[i]) * valueSize
	}
	current = align(current)
	offsets[kb.NumPartitions] = current / valueSize
	return offsets, current
}

// GeneratePreamble emits the type definitions, constants and partition
// access macros shared by every kernel
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	floatTypeStr := "double"
	if kb.FloatType == Float32 {
		floatTypeStr = "float"
	}
	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n\n", intTypeStr))
	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString(fmt.Sprintf("#define NINNER %d\n\n", kb.InnerSize()))

	for _, a := range kb.Arrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			a.Name, a.Name, a.Name))
	}

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// GenerateKernelSignature lists K, then global pointer and offsets of every
// array, then the scalars
func (kb *Builder) GenerateKernelSignature(scalars ...string) string {
	params := []string{"const int_t* K"}
	for _, a := range kb.Arrays {
		qualifier := "const "
		if a.IsOutput {
			qualifier = ""
		}
		params = append(params,
			fmt.Sprintf("%sreal_t* %s_global", qualifier, a.Name),
			fmt.Sprintf("const int_t* %s_offsets", a.Name))
	}
	for _, s := range scalars {
		params = append(params, "const real_t "+s)
	}
	return strings.Join(params, ",\n\t")
}

// InnerSize is the @inner width, capped to what every backend accepts
func (kb *Builder) InnerSize() int {
	if kb.KpartMax < MaxInner {
		return kb.KpartMax
	}
	return MaxInner
}

// GenerateKernelTemplate wraps body in the partition loop. body sees elem,
// striding over [0, K[part]) across the @inner threads.
func (kb *Builder) GenerateKernelTemplate(kernelName, body string, scalars ...string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("@kernel void %s(\n\t%s\n) {\n", kernelName, kb.GenerateKernelSignature(scalars...)))
	sb.WriteString("\tfor (int part = 0; part < NPART; ++part; @outer) {\n")
	for _, a := range kb.Arrays {
		qualifier := "const "
		if a.IsOutput {
			qualifier = ""
		}
		sb.WriteString(fmt.Sprintf("\t\t%sreal_t* %s = %s_PART(part);\n", qualifier, a.Name, a.Name))
	}
	sb.WriteString("\t\tfor (int t = 0; t < NINNER; ++t; @inner) {\n")
	sb.WriteString("\t\t\tfor (int_t elem = t; elem < K[part]; elem += NINNER) {\n")
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		sb.WriteString("\t\t\t\t" + strings.TrimSpace(line) + "\n")
	}
	sb.WriteString("\t\t\t}\n\t\t}\n\t}\n}\n")
	return sb.String()
}
