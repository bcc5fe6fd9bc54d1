package kernels

import (
	"math"
	"math/rand"
	"testing"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
)

func benchExec(b *testing.B, impl Impl) (*Exec, *device.Device) {
	b.Helper()
	var dev *device.Device
	if impl == ImplDevice {
		dev = device.New(0)
	}
	ex, err := NewExec(impl, dev)
	if err != nil {
		b.Fatalf("NewExec: %v", err)
	}
	return ex, dev
}

func benchStokesIQU(b *testing.B, impl Impl) {
	const nSamp = 1 << 15
	ex, dev := benchExec(b, impl)
	if dev != nil {
		defer dev.Close()
	}

	alloc := func(n int) []float64 {
		if dev != nil {
			buf, err := dev.AllocF64(n)
			if err != nil {
				b.Fatalf("AllocF64: %v", err)
			}
			return buf
		}
		return make([]float64, n)
	}

	rng := rand.New(rand.NewSource(1))
	quats := alloc(4 * nSamp)
	for i := 0; i < nSamp; i++ {
		ang := rng.Float64() * math.Pi
		sin, cos := math.Sincos(ang / 2)
		quats[4*i+2] = sin
		quats[4*i+3] = cos
	}
	weights := alloc(3 * nSamp)
	view := intervals.List{{First: 0, Last: nSamp - 1}}

	b.SetBytes(4 * 8 * nSamp)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := ex.StokesWeightsIQU([]int32{0}, quats, []int32{0}, weights, nil, nSamp, view, []float64{0}, 1.0)
		if err != nil {
			b.Fatalf("StokesWeightsIQU: %v", err)
		}
	}
}

func BenchmarkStokesIQUScalar(b *testing.B) { benchStokesIQU(b, ImplScalar) }
func BenchmarkStokesIQUVector(b *testing.B) { benchStokesIQU(b, ImplVector) }
func BenchmarkStokesIQUDevice(b *testing.B) { benchStokesIQU(b, ImplDevice) }

func benchOffsetAdd(b *testing.B, impl Impl) {
	const nSamp = 1 << 15
	const step = 64
	ex, dev := benchExec(b, impl)
	if dev != nil {
		defer dev.Close()
	}

	alloc := func(n int) []float64 {
		if dev != nil {
			buf, err := dev.AllocF64(n)
			if err != nil {
				b.Fatalf("AllocF64: %v", err)
			}
			return buf
		}
		return make([]float64, n)
	}

	view := intervals.List{{First: 0, Last: nSamp - 1}}
	nAmpViews, err := view.AmpViews(step)
	if err != nil {
		b.Fatalf("AmpViews: %v", err)
	}
	amps := alloc(int(nAmpViews[0]))
	for i := range amps {
		amps[i] = float64(i)
	}
	data := alloc(nSamp)

	b.SetBytes(8 * nSamp)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ex.OffsetAddToSignal(step, 0, nAmpViews, amps, 0, data, nSamp, view); err != nil {
			b.Fatalf("OffsetAddToSignal: %v", err)
		}
	}
}

func BenchmarkOffsetAddScalar(b *testing.B) { benchOffsetAdd(b, ImplScalar) }
func BenchmarkOffsetAddVector(b *testing.B) { benchOffsetAdd(b, ImplVector) }
func BenchmarkOffsetAddDevice(b *testing.B) { benchOffsetAdd(b, ImplDevice) }
