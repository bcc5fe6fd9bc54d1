// Package kernels implements the hot numeric loops of the map-making
// pipeline: Stokes-weight computation, noise-weighted accumulation into a
// submap-distributed sky map, and the offset-template (baseline) operations.
//
// Every kernel exists in three interchangeable implementation families
// selected through an Exec handle: a scalar reference, a SIMD-vectorized
// tier built on go-highway, and a worker-pool offloaded tier that requires
// device-resident buffers. All families produce identical results for
// identical inputs.
package kernels

import (
	"errors"
	"fmt"
	"os"

	"todmap-go/internal/device"
)

var (
	ErrShape              = errors.New("kernels: shape mismatch")
	ErrIndexRange         = errors.New("kernels: index out of range")
	ErrBackendUnavailable = errors.New("kernels: backend not available")
	ErrNotResident        = errors.New("kernels: buffer not resident on device")
)

// Impl selects an implementation family.
type Impl int

const (
	// ImplScalar is the reference implementation: plain per-sample loops.
	ImplScalar Impl = iota
	// ImplVector is the SIMD tier over go-highway, single threaded.
	ImplVector
	// ImplDevice runs on a device worker pool and requires all sample and
	// accumulator buffers to be device resident.
	ImplDevice
)

func (i Impl) String() string {
	switch i {
	case ImplScalar:
		return "scalar"
	case ImplVector:
		return "vector"
	case ImplDevice:
		return "device"
	default:
		return fmt.Sprintf("impl(%d)", int(i))
	}
}

// ParseImpl maps a configuration string to an implementation family.
func ParseImpl(s string) (Impl, error) {
	switch s {
	case "scalar":
		return ImplScalar, nil
	case "vector":
		return ImplVector, nil
	case "device":
		return ImplDevice, nil
	default:
		return ImplScalar, fmt.Errorf("%w: unknown family %q", ErrBackendUnavailable, s)
	}
}

// ImplFromEnv returns the family named by TODMAP_IMPL, or fallback when the
// variable is unset or unparsable.
func ImplFromEnv(fallback Impl) Impl {
	raw := os.Getenv("TODMAP_IMPL")
	if raw == "" {
		return fallback
	}
	impl, err := ParseImpl(raw)
	if err != nil {
		return fallback
	}
	return impl
}

// Exec threads the active implementation family and device handle through
// kernel calls. There is no package-level active family or device.
type Exec struct {
	impl Impl
	dev  *device.Device
}

// NewExec builds an execution handle. ImplDevice requires a device; the
// other families ignore it.
func NewExec(impl Impl, dev *device.Device) (*Exec, error) {
	if impl != ImplScalar && impl != ImplVector && impl != ImplDevice {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, impl)
	}
	if impl == ImplDevice && dev == nil {
		return nil, fmt.Errorf("%w: device family requested without a device", ErrBackendUnavailable)
	}
	return &Exec{impl: impl, dev: dev}, nil
}

// Impl returns the active family.
func (ex *Exec) Impl() Impl {
	return ex.impl
}

// Device returns the bound device, nil for host families.
func (ex *Exec) Device() *device.Device {
	return ex.dev
}

// requireResident verifies device residency of the given buffers before an
// offloaded kernel runs. Index tables and per-detector scalars are host
// metadata and are not subject to residency.
func (ex *Exec) requireResident(name string, f64 [][]float64, i64 [][]int64, u8 [][]uint8) error {
	if ex.impl != ImplDevice {
		return nil
	}
	for _, buf := range f64 {
		if !ex.dev.ResidentF64(buf) {
			return fmt.Errorf("%s: float64 buffer on host: %w", name, ErrNotResident)
		}
	}
	for _, buf := range i64 {
		if !ex.dev.ResidentI64(buf) {
			return fmt.Errorf("%s: int64 buffer on host: %w", name, ErrNotResident)
		}
	}
	for _, buf := range u8 {
		if !ex.dev.ResidentU8(buf) {
			return fmt.Errorf("%s: flag buffer on host: %w", name, ErrNotResident)
		}
	}
	return nil
}

// checkIndex verifies that every logical-detector index maps to a valid
// physical row.
func checkIndex(name string, index []int32, nRows int64) error {
	for d, row := range index {
		if int64(row) < 0 || int64(row) >= nRows {
			return fmt.Errorf("%s[%d] = %d, %d rows: %w", name, d, row, nRows, ErrIndexRange)
		}
	}
	return nil
}

// rowCount derives the number of physical rows of a flat [rows][nSamp][width]
// buffer, erroring when the length is not a whole number of rows.
func rowCount(name string, bufLen, nSamp, width int64) (int64, error) {
	stride := nSamp * width
	if stride == 0 {
		return 0, fmt.Errorf("%s: zero-length rows: %w", name, ErrShape)
	}
	if bufLen%stride != 0 {
		return 0, fmt.Errorf("%s: length %d not a multiple of row stride %d: %w", name, bufLen, stride, ErrShape)
	}
	return bufLen / stride, nil
}
