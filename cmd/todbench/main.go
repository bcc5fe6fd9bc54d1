// todbench times the pointing-weight and binning passes under each
// implementation family.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"todmap-go/pkg/todmap"
)

func fillObservation(obs *todmap.Observation, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	n := int(obs.NSamp)
	for i := 0; i < n; i++ {
		ax, ay, az := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		half := rng.Float64() * math.Pi
		sin, cos := math.Sincos(half)
		for idet := range obs.Detectors {
			base := 4 * (idet*n + i)
			obs.Quats[base] = sin * ax / norm
			obs.Quats[base+1] = sin * ay / norm
			obs.Quats[base+2] = sin * az / norm
			obs.Quats[base+3] = cos
			obs.Pixels[idet*n+i] = rng.Int63n(64)
			obs.DetData[idet*n+i] = rng.NormFloat64()
		}
	}
}

func benchFamily(impl string, workers int, samples int64, dets, iters int) (time.Duration, error) {
	s, err := todmap.NewSession(todmap.Config{Impl: impl, Workers: workers})
	if err != nil {
		return 0, err
	}
	defer s.Close()

	view := todmap.IntervalList{{First: 0, Last: samples - 1}}
	obs, err := s.NewObservation(samples, 3, dets, view)
	if err != nil {
		return 0, err
	}
	fillObservation(obs, 1)

	m, err := todmap.NewSubmapMap(16, 4, []int64{0, 1, 2, 3})
	if err != nil {
		return 0, err
	}
	z, err := s.AllocZMap(m, 3)
	if err != nil {
		return 0, err
	}

	obss := []*todmap.Observation{obs}
	start := time.Now()
	for i := 0; i < iters; i++ {
		if err := s.PointingWeights(obss, 1.0); err != nil {
			return 0, err
		}
		z.Reset()
		if err := s.Bin(z, obss, 0xFF, 0xFF); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

func main() {
	var (
		samples = flag.Int64("samples", 1<<16, "Samples per observation")
		dets    = flag.Int("dets", 4, "Detectors per observation")
		iters   = flag.Int("iters", 10, "Pass repetitions")
		workers = flag.Int("workers", 0, "Device pool size (0 = auto)")
	)
	flag.Parse()

	fmt.Printf("samples=%d dets=%d iters=%d simd=%s\n", *samples, *dets, *iters, todmap.Capabilities())
	for _, impl := range []string{"scalar", "vector", "device"} {
		elapsed, err := benchFamily(impl, *workers, *samples, *dets, *iters)
		if err != nil {
			log.Fatalf("%s: %v", impl, err)
		}
		perPass := elapsed / time.Duration(*iters)
		rate := float64(*samples) * float64(*dets) * float64(*iters) / elapsed.Seconds()
		fmt.Printf("  %-7s %12v/pass %12.0f samples/s\n", impl, perPass, rate)
	}
}
