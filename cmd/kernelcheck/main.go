// kernelcheck runs every map-making kernel under the scalar, vector and
// device families on one randomized observation and reports the maximum
// deviation of each family from the scalar reference.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
	"todmap-go/internal/kernels"
	"todmap-go/internal/pixels"
)

type scene struct {
	nSamp int64
	view  intervals.List

	quats    []float64
	hwp      []float64
	pixels   []int64
	detData  []float64
	detFlags []uint8

	stepLength int64
	nAmpViews  []int64
	nAmp       int64
	amps       []float64
	offsetVar  []float64
}

func buildScene(nSamp, stepLength int64, seed int64) (*scene, error) {
	rng := rand.New(rand.NewSource(seed))
	gap := nSamp / 2
	view := intervals.List{
		{First: 3, Last: gap - 1},
		{First: gap + 2, Last: nSamp - 2},
	}
	s := &scene{
		nSamp:      nSamp,
		view:       view,
		quats:      make([]float64, 4*nSamp),
		hwp:        make([]float64, nSamp),
		pixels:     make([]int64, nSamp),
		detData:    make([]float64, nSamp),
		detFlags:   make([]uint8, nSamp),
		stepLength: stepLength,
	}
	for i := int64(0); i < nSamp; i++ {
		ax, ay, az := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		half := rng.Float64() * math.Pi
		sin, cos := math.Sincos(half)
		s.quats[4*i] = sin * ax / norm
		s.quats[4*i+1] = sin * ay / norm
		s.quats[4*i+2] = sin * az / norm
		s.quats[4*i+3] = cos
		s.hwp[i] = rng.Float64() * math.Pi
		s.pixels[i] = rng.Int63n(66) - 2
		s.detData[i] = rng.NormFloat64()
		s.detFlags[i] = uint8(rng.Intn(4))
	}
	nAmpViews, err := view.AmpViews(stepLength)
	if err != nil {
		return nil, err
	}
	s.nAmpViews = nAmpViews
	for _, n := range nAmpViews {
		s.nAmp += n
	}
	s.amps = make([]float64, s.nAmp)
	s.offsetVar = make([]float64, s.nAmp)
	for i := range s.amps {
		s.amps[i] = rng.NormFloat64()
		s.offsetVar[i] = rng.Float64() + 0.5
	}
	return s, nil
}

func runFamily(impl kernels.Impl, workers int, s *scene) (map[string][]float64, error) {
	var dev *device.Device
	if impl == kernels.ImplDevice {
		dev = device.New(workers)
		defer dev.Close()
	}
	ex, err := kernels.NewExec(impl, dev)
	if err != nil {
		return nil, err
	}

	cloneF64 := func(src []float64) ([]float64, error) {
		var dst []float64
		if dev != nil {
			if dst, err = dev.AllocF64(len(src)); err != nil {
				return nil, err
			}
		} else {
			dst = make([]float64, len(src))
		}
		copy(dst, src)
		return dst, nil
	}

	out := make(map[string][]float64)

	wI, err := cloneF64(make([]float64, s.nSamp))
	if err != nil {
		return nil, err
	}
	if err := ex.StokesWeightsI([]int32{0}, wI, s.nSamp, s.view, 1.25); err != nil {
		return nil, fmt.Errorf("stokes_weights_I: %w", err)
	}
	out["stokes_weights_I"] = wI

	quats, err := cloneF64(s.quats)
	if err != nil {
		return nil, err
	}
	hwp, err := cloneF64(s.hwp)
	if err != nil {
		return nil, err
	}
	weights, err := cloneF64(make([]float64, 3*s.nSamp))
	if err != nil {
		return nil, err
	}
	err = ex.StokesWeightsIQU([]int32{0}, quats, []int32{0}, weights, hwp, s.nSamp, s.view, []float64{0.02}, 1.0)
	if err != nil {
		return nil, fmt.Errorf("stokes_weights_IQU: %w", err)
	}
	out["stokes_weights_IQU"] = weights

	m, err := pixels.NewSubmapMap(16, 4, []int64{0, 1, 2, 3})
	if err != nil {
		return nil, err
	}
	z, err := pixels.NewZMap(m, 3)
	if err != nil {
		return nil, err
	}
	if z.Data, err = cloneF64(z.Data); err != nil {
		return nil, err
	}
	pix := s.pixels
	flags := s.detFlags
	if dev != nil {
		if pix, err = dev.AllocI64(len(s.pixels)); err != nil {
			return nil, err
		}
		copy(pix, s.pixels)
		if flags, err = dev.AllocU8(len(s.detFlags)); err != nil {
			return nil, err
		}
		copy(flags, s.detFlags)
	}
	detData, err := cloneF64(s.detData)
	if err != nil {
		return nil, err
	}
	err = ex.AccumulateNoiseWeighted(&kernels.AccumArgs{
		ZMap:        z,
		PixelIndex:  []int32{0},
		Pixels:      pix,
		WeightIndex: []int32{0},
		Weights:     weights,
		DataIndex:   []int32{0},
		DetData:     detData,
		FlagIndex:   []int32{0},
		DetFlags:    flags,
		DetFlagMask: 0x1,
		DetScale:    []float64{1.5},
		NSamp:       s.nSamp,
		View:        s.view,
	})
	if err != nil {
		return nil, fmt.Errorf("accumulate: %w", err)
	}
	out["accumulate"] = z.Data

	amps, err := cloneF64(s.amps)
	if err != nil {
		return nil, err
	}
	err = ex.OffsetAddToSignal(s.stepLength, 0, s.nAmpViews, amps, 0, detData, s.nSamp, s.view)
	if err != nil {
		return nil, fmt.Errorf("offset_add_to_signal: %w", err)
	}
	out["offset_add_to_signal"] = detData

	proj, err := cloneF64(make([]float64, s.nAmp))
	if err != nil {
		return nil, err
	}
	err = ex.OffsetProjectSignal(0, detData, 0, flags, 0x1, s.stepLength, 0, s.nAmpViews, proj, s.nSamp, s.view)
	if err != nil {
		return nil, fmt.Errorf("offset_project_signal: %w", err)
	}
	out["offset_project_signal"] = proj

	vr, err := cloneF64(s.offsetVar)
	if err != nil {
		return nil, err
	}
	pre, err := cloneF64(make([]float64, s.nAmp))
	if err != nil {
		return nil, err
	}
	if err := ex.OffsetApplyDiagPrecond(vr, amps, pre); err != nil {
		return nil, fmt.Errorf("offset_apply_diag_precond: %w", err)
	}
	out["offset_apply_diag_precond"] = pre

	return out, nil
}

func main() {
	var (
		samples = flag.Int64("samples", 4096, "Samples per observation")
		step    = flag.Int64("step", 31, "Offset template step length")
		seed    = flag.Int64("seed", 1, "Random seed")
		workers = flag.Int("workers", 0, "Device pool size (0 = auto)")
	)
	flag.Parse()

	s, err := buildScene(*samples, *step, *seed)
	if err != nil {
		log.Fatalf("build scene: %v", err)
	}

	fmt.Printf("samples=%d step=%d seed=%d simd=%s\n", *samples, *step, *seed, device.Capabilities())

	ref, err := runFamily(kernels.ImplScalar, 0, s)
	if err != nil {
		log.Fatalf("scalar: %v", err)
	}
	for _, impl := range []kernels.Impl{kernels.ImplVector, kernels.ImplDevice} {
		got, err := runFamily(impl, *workers, s)
		if err != nil {
			log.Fatalf("%s: %v", impl, err)
		}
		for name, want := range ref {
			var maxDev float64
			for i := range want {
				if d := math.Abs(got[name][i] - want[i]); d > maxDev {
					maxDev = d
				}
			}
			fmt.Printf("  %-28s %s max|dev|=%.3e\n", name, impl, maxDev)
		}
	}
}
