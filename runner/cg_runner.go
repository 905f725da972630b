package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/runner/builder"
)

// Names of the partitioned arrays; one partition per held patch
var cgArrays = []builder.ArraySpec{
	{Name: "phi", IsOutput: true},
	{Name: "r", IsOutput: true},
	{Name: "p", IsOutput: true},
	{Name: "Ap"},
}

const (
	updatePhiRBody = `
phi[elem] += alpha * p[elem];
r[elem] -= alpha * Ap[elem];`

	updatePBody = `
p[elem] = r[elem] + beta * p[elem];`
)

// CGRunner runs the element-wise sweeps of the conjugate gradient on an
// OCCA device. Host fields are staged through one contiguous buffer per
// array and copied around every sweep.
type CGRunner struct {
	*builder.Builder
	Device       *gocca.OCCADevice
	Kernels      map[string]*gocca.OCCAKernel
	PooledMemory map[string]*gocca.OCCAMemory

	offsets []int64
	staging map[string][]float64
}

// NewCGRunner allocates device arrays for partitions of the given sizes, in
// the order the held patches appear by id, and compiles both kernels
func NewCGRunner(device *gocca.OCCADevice, sizes []int) (*CGRunner, error) {
	bld := builder.NewBuilder(builder.Config{K: sizes})
	for _, spec := range cgArrays {
		bld.AddArray(spec)
	}
	cr := &CGRunner{
		Builder:      bld,
		Device:       device,
		Kernels:      make(map[string]*gocca.OCCAKernel),
		PooledMemory: make(map[string]*gocca.OCCAMemory),
		staging:      make(map[string][]float64),
	}

	k := make([]int64, len(sizes))
	for i, s := range sizes {
		k[i] = int64(s)
	}
	cr.PooledMemory["K"] = device.Malloc(int64(len(k)*8), unsafe.Pointer(&k[0]), nil)

	for _, spec := range cgArrays {
		offsets, total := bld.CalculateAlignedOffsetsAndSize(spec)
		cr.offsets = offsets
		cr.PooledMemory[spec.Name+"_global"] = device.Malloc(total, nil, nil)
		cr.PooledMemory[spec.Name+"_offsets"] = device.Malloc(int64(len(offsets)*8), unsafe.Pointer(&offsets[0]), nil)
		cr.staging[spec.Name] = make([]float64, offsets[len(offsets)-1])
	}

	bld.GeneratePreamble()
	for name, body := range map[string]struct {
		src     string
		scalars []string
	}{
		"updatePhiR": {updatePhiRBody, []string{"alpha"}},
		"updateP":    {updatePBody, []string{"beta"}},
	} {
		if _, err := cr.BuildKernel(bld.GenerateKernelTemplate(name, body.src, body.scalars...), name); err != nil {
			cr.Free()
			return nil, err
		}
	}
	log.WithFields(log.Fields{
		"mode":       device.Mode(),
		"partitions": bld.NumPartitions,
		"kpartMax":   bld.KpartMax,
	}).Debug("built conjugate gradient kernels")
	return cr, nil
}

// BuildKernel compiles kernelSource behind the shared preamble
func (cr *CGRunner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	fullSource := cr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if cr.Device.Mode() == "OpenMP" {
		// OpenMP builds do not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = cr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = cr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	cr.Kernels[kernelName] = kernel
	return kernel, nil
}

// held drops the nil entries and checks the partition sizes
func (cr *CGRunner) held(name string, fields []*field.Field) ([]*field.Field, error) {
	out := make([]*field.Field, 0, cr.NumPartitions)
	for _, f := range fields {
		if f != nil {
			out = append(out, f)
		}
	}
	if len(out) != cr.NumPartitions {
		return nil, fmt.Errorf("%s: %d patches held, runner built for %d", name, len(out), cr.NumPartitions)
	}
	for part, f := range out {
		if f.Size() != cr.K[part] {
			return nil, fmt.Errorf("%s: partition %d has %d nodes, runner built for %d", name, part, f.Size(), cr.K[part])
		}
	}
	return out, nil
}

func (cr *CGRunner) copyToDevice(name string, fields []*field.Field) {
	buf := cr.staging[name]
	for part, f := range fields {
		copy(buf[cr.offsets[part]:], f.Data())
	}
	cr.PooledMemory[name+"_global"].CopyFrom(unsafe.Pointer(&buf[0]), int64(len(buf)*8))
}

func (cr *CGRunner) copyFromDevice(name string, fields []*field.Field) {
	buf := cr.staging[name]
	cr.PooledMemory[name+"_global"].CopyTo(unsafe.Pointer(&buf[0]), int64(len(buf)*8))
	for part, f := range fields {
		copy(f.Data(), buf[cr.offsets[part]:cr.offsets[part]+int64(f.Size())])
	}
}

func (cr *CGRunner) args(scalar float64) []interface{} {
	args := []interface{}{cr.PooledMemory["K"]}
	for _, spec := range cgArrays {
		args = append(args, cr.PooledMemory[spec.Name+"_global"], cr.PooledMemory[spec.Name+"_offsets"])
	}
	return append(args, scalar)
}

// UpdatePhiAndR computes phi += alpha p and r -= alpha Ap on the device
func (cr *CGRunner) UpdatePhiAndR(phi, r, p, ap []*field.Field, alpha float64) error {
	bound := make(map[string][]*field.Field, len(cgArrays))
	for name, fs := range map[string][]*field.Field{"phi": phi, "r": r, "p": p, "Ap": ap} {
		h, err := cr.held(name, fs)
		if err != nil {
			return err
		}
		bound[name] = h
		cr.copyToDevice(name, h)
	}
	if err := cr.Kernels["updatePhiR"].RunWithArgs(cr.args(alpha)...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	cr.Device.Finish()
	cr.copyFromDevice("phi", bound["phi"])
	cr.copyFromDevice("r", bound["r"])
	return nil
}

// UpdateP computes p = r + beta p on the device
func (cr *CGRunner) UpdateP(p, r []*field.Field, beta float64) error {
	hp, err := cr.held("p", p)
	if err != nil {
		return err
	}
	hr, err := cr.held("r", r)
	if err != nil {
		return err
	}
	cr.copyToDevice("p", hp)
	cr.copyToDevice("r", hr)
	if err := cr.Kernels["updateP"].RunWithArgs(cr.args(beta)...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	cr.Device.Finish()
	cr.copyFromDevice("p", hp)
	return nil
}

// Free releases kernels and device memory
func (cr *CGRunner) Free() {
	for _, kernel := range cr.Kernels {
		kernel.Free()
	}
	for _, mem := range cr.PooledMemory {
		mem.Free()
	}
}
