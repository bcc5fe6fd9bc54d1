package kernels

import (
	"github.com/ajroetker/go-highway/hwy"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
)

// stepRuns visits the step-aligned runs of one interval: maximal sample
// ranges [s,e) sharing a single amplitude. ampRel is the interval-local
// amplitude number, starting at zero.
func stepRuns(iv intervals.Interval, stepLength int64, fn func(ampRel, s, e int64)) {
	base := iv.First / stepLength
	s := iv.First
	for s <= iv.Last {
		step := s / stepLength
		e := (step + 1) * stepLength
		if e > iv.Last+1 {
			e = iv.Last + 1
		}
		fn(step-base, s, e)
		s = e
	}
}

// addRun adds a constant to row[s:e) through the vector unit.
func addRun(row []float64, s, e int64, value float64) {
	dst := row[s:e]
	v := hwy.Set(value)
	hwy.ProcessWithTail[float64](len(dst),
		func(offset int) {
			hwy.Store(hwy.Add(hwy.Load(dst[offset:]), v), dst[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			hwy.MaskStore(mask, hwy.Add(hwy.MaskLoad(mask, dst[offset:]), v), dst[offset:])
		},
	)
}

func offsetAddVector(stepLength, ampOffset int64, nAmpViews []int64, amplitudes, row []float64, view intervals.List, dev *device.Device) {
	offset := ampOffset
	for iview, iv := range view {
		if dev != nil {
			// Runs are disjoint sample ranges; each is one task.
			type run struct{ amp, s, e int64 }
			var runs []run
			stepRuns(iv, stepLength, func(ampRel, s, e int64) {
				runs = append(runs, run{offset + ampRel, s, e})
			})
			dev.ParallelFor(len(runs), func(start, end int) {
				for i := start; i < end; i++ {
					addRun(row, runs[i].s, runs[i].e, amplitudes[runs[i].amp])
				}
			})
		} else {
			stepRuns(iv, stepLength, func(ampRel, s, e int64) {
				addRun(row, s, e, amplitudes[offset+ampRel])
			})
		}
		offset += nAmpViews[iview]
	}
}

// sumRun reduces row[s:e) with the vector unit, zeroing flagged samples.
func sumRun(row []float64, flagRow []uint8, flagMask uint8, s, e int64, scratch []float64) float64 {
	src := row[s:e]
	if flagRow != nil {
		staged := scratch[:e-s]
		for i := s; i < e; i++ {
			if flagRow[i]&flagMask != 0 {
				staged[i-s] = 0
			} else {
				staged[i-s] = row[i]
			}
		}
		src = staged
	}
	var total float64
	hwy.ProcessWithTail[float64](len(src),
		func(offset int) {
			total += hwy.ReduceSum(hwy.Load(src[offset:]))
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			total += hwy.ReduceSum(hwy.MaskLoad(mask, src[offset:]))
		},
	)
	return total
}

func offsetProjectVector(row []float64, flagRow []uint8, flagMask uint8, stepLength, ampOffset int64, nAmpViews []int64, amplitudes []float64, view intervals.List, dev *device.Device) {
	scratch := make([]float64, stepLength)
	offset := ampOffset
	for iview, iv := range view {
		if dev != nil {
			// One task per run: each amplitude has exactly one run per
			// interval, so workers never collide on an amplitude.
			type run struct{ amp, s, e int64 }
			var runs []run
			stepRuns(iv, stepLength, func(ampRel, s, e int64) {
				runs = append(runs, run{offset + ampRel, s, e})
			})
			dev.ParallelFor(len(runs), func(start, end int) {
				local := make([]float64, stepLength)
				for i := start; i < end; i++ {
					amplitudes[runs[i].amp] += sumRun(row, flagRow, flagMask, runs[i].s, runs[i].e, local)
				}
			})
		} else {
			stepRuns(iv, stepLength, func(ampRel, s, e int64) {
				amplitudes[offset+ampRel] += sumRun(row, flagRow, flagMask, s, e, scratch)
			})
		}
		offset += nAmpViews[iview]
	}
}

// precondRange applies the Hadamard product on [start,end).
func precondRange(offsetVar, ampIn, ampOut []float64, start, end int) {
	in := ampIn[start:end]
	vr := offsetVar[start:end]
	out := ampOut[start:end]
	hwy.ProcessWithTail[float64](len(in),
		func(offset int) {
			hwy.Store(hwy.Mul(hwy.Load(in[offset:]), hwy.Load(vr[offset:])), out[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			hwy.MaskStore(mask, hwy.Mul(hwy.MaskLoad(mask, in[offset:]), hwy.MaskLoad(mask, vr[offset:])), out[offset:])
		},
	)
}
