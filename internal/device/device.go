// Package device provides the explicit compute-device handle used by the
// offloaded kernel family. A Device owns a persistent worker pool and a
// registry of buffers allocated on it. Residency is a correctness
// precondition for offloaded execution: kernels refuse host buffers instead
// of transferring them, so zero-copy guarantees made to the caller hold.
package device

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"unsafe"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"golang.org/x/sys/cpu"
)

var ErrClosed = errors.New("device: closed")

type span struct {
	base uintptr
	size uintptr
}

// Device binds a worker pool and the set of buffers resident on it. It is
// owned by the orchestrating pipeline and threaded through kernel calls;
// there is no package-level active device.
type Device struct {
	workers int
	pool    *workerpool.Pool

	mu     sync.Mutex
	spans  []span
	closed bool
}

// New creates a device with the given worker count. workers <= 0 falls back
// to TODMAP_WORKERS, then GOMAXPROCS.
func New(workers int) *Device {
	if workers <= 0 {
		workers = envInt("TODMAP_WORKERS", 0)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Device{
		workers: workers,
		pool:    workerpool.New(workers),
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Workers returns the pool size.
func (d *Device) Workers() int {
	return d.workers
}

// ParallelFor splits [0,n) across the pool workers.
func (d *Device) ParallelFor(n int, fn func(start, end int)) {
	d.pool.ParallelFor(n, fn)
}

// Close shuts down the worker pool and forgets all resident buffers.
func (d *Device) Close() {
	d.mu.Lock()
	d.closed = true
	d.spans = nil
	d.mu.Unlock()
	d.pool.Close()
}

func (d *Device) register(p unsafe.Pointer, size uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spans = append(d.spans, span{base: uintptr(p), size: size})
}

func (d *Device) resident(p unsafe.Pointer, size uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	addr := uintptr(p)
	for _, s := range d.spans {
		if addr >= s.base && addr+size <= s.base+s.size {
			return true
		}
	}
	return false
}

// AllocF64 allocates a device-resident float64 buffer.
func (d *Device) AllocF64(n int) ([]float64, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("alloc %d float64: %w", n, ErrClosed)
	}
	buf := make([]float64, n)
	if n > 0 {
		d.register(unsafe.Pointer(&buf[0]), uintptr(n)*8)
	}
	return buf, nil
}

// AllocI64 allocates a device-resident int64 buffer.
func (d *Device) AllocI64(n int) ([]int64, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("alloc %d int64: %w", n, ErrClosed)
	}
	buf := make([]int64, n)
	if n > 0 {
		d.register(unsafe.Pointer(&buf[0]), uintptr(n)*8)
	}
	return buf, nil
}

// AllocU8 allocates a device-resident flag buffer.
func (d *Device) AllocU8(n int) ([]uint8, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("alloc %d uint8: %w", n, ErrClosed)
	}
	buf := make([]uint8, n)
	if n > 0 {
		d.register(unsafe.Pointer(&buf[0]), uintptr(n))
	}
	return buf, nil
}

// ResidentF64 reports whether the buffer was allocated on this device.
// Empty buffers are trivially resident.
func (d *Device) ResidentF64(buf []float64) bool {
	if len(buf) == 0 {
		return true
	}
	return d.resident(unsafe.Pointer(&buf[0]), uintptr(len(buf))*8)
}

// ResidentI64 reports whether the buffer was allocated on this device.
func (d *Device) ResidentI64(buf []int64) bool {
	if len(buf) == 0 {
		return true
	}
	return d.resident(unsafe.Pointer(&buf[0]), uintptr(len(buf))*8)
}

// ResidentU8 reports whether the buffer was allocated on this device.
func (d *Device) ResidentU8(buf []uint8) bool {
	if len(buf) == 0 {
		return true
	}
	return d.resident(unsafe.Pointer(&buf[0]), uintptr(len(buf)))
}

// Capabilities describes the host SIMD features backing the pool workers.
func Capabilities() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "avx512"
	case cpu.X86.HasAVX2:
		return "avx2"
	case cpu.ARM64.HasASIMD:
		return "neon"
	default:
		return "scalar"
	}
}
