package kernels

import (
	"github.com/ajroetker/go-highway/hwy"
	hmath "github.com/ajroetker/go-highway/hwy/contrib/math"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
)

func stokesIVector(weightIndex []int32, weights []float64, nSamp int64, view intervals.List, cal float64) {
	vcal := hwy.Set(cal)
	for _, wIdx := range weightIndex {
		row := weights[int64(wIdx)*nSamp : (int64(wIdx)+1)*nSamp]
		for _, iv := range view {
			dst := row[iv.First : iv.Last+1]
			hwy.ProcessWithTail[float64](len(dst),
				func(offset int) {
					hwy.Store(vcal, dst[offset:])
				},
				func(offset, count int) {
					mask := hwy.TailMask[float64](count)
					hwy.MaskStore(mask, vcal, dst[offset:])
				},
			)
		}
	}
}

func stokesIDevice(dev *device.Device, weightIndex []int32, weights []float64, nSamp int64, view intervals.List, cal float64) {
	for _, wIdx := range weightIndex {
		row := weights[int64(wIdx)*nSamp : (int64(wIdx)+1)*nSamp]
		for _, iv := range view {
			dst := row[iv.First : iv.Last+1]
			dev.ParallelFor(len(dst), func(start, end int) {
				for i := start; i < end; i++ {
					dst[i] = cal
				}
			})
		}
	}
}

// iquScratch holds the SoA staging buffers for the vectorized IQU pipeline,
// reused across intervals of one kernel call.
type iquScratch struct {
	by  []float64
	bx  []float64
	ang []float64
	sin []float64
	cos []float64
}

func newIQUScratch(n int64) *iquScratch {
	return &iquScratch{
		by:  make([]float64, n),
		bx:  make([]float64, n),
		ang: make([]float64, n),
		sin: make([]float64, n),
		cos: make([]float64, n),
	}
}

// stokesIQURange processes samples [start,end) of one interval for one
// detector. quatRow and weightRow are the physical rows, hwp may be nil.
// Scratch is indexed by absolute sample number, so concurrent callers on
// disjoint ranges share one scratch per interval.
func stokesIQURange(quatRow, weightRow, hwp []float64, start, end int64, eta, cal float64, sc *iquScratch) {
	// Stage atan2 operands in SoA form; the quaternion layout is AoS so
	// this part stays scalar.
	for isamp := start; isamp < end; isamp++ {
		sc.by[isamp], sc.bx[isamp] = polAngleTerms(quatRow[4*isamp : 4*isamp+4])
	}

	by := sc.by[start:end]
	bx := sc.bx[start:end]
	ang := sc.ang[start:end]
	sin := sc.sin[start:end]
	cos := sc.cos[start:end]
	two := hwy.Set(2.0)

	hwy.ProcessWithTail[float64](int(end-start),
		func(offset int) {
			a := hmath.Atan2(hwy.Load(by[offset:]), hwy.Load(bx[offset:]))
			if hwp != nil {
				a = hwy.FMA(two, hwy.Load(hwp[start+int64(offset):]), a)
			}
			a = hwy.Mul(a, two)
			s, c := hmath.SinCos(a)
			hwy.Store(a, ang[offset:])
			hwy.Store(s, sin[offset:])
			hwy.Store(c, cos[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			a := hmath.Atan2(hwy.MaskLoad(mask, by[offset:]), hwy.MaskLoad(mask, bx[offset:]))
			if hwp != nil {
				a = hwy.FMA(two, hwy.MaskLoad(mask, hwp[start+int64(offset):]), a)
			}
			a = hwy.Mul(a, two)
			s, c := hmath.SinCos(a)
			hwy.MaskStore(mask, a, ang[offset:])
			hwy.MaskStore(mask, s, sin[offset:])
			hwy.MaskStore(mask, c, cos[offset:])
		},
	)

	// Scatter back into the interleaved weight row.
	etaCal := eta * cal
	for isamp := start; isamp < end; isamp++ {
		off := 3 * isamp
		weightRow[off] = cal
		weightRow[off+1] = sc.cos[isamp] * etaCal
		weightRow[off+2] = sc.sin[isamp] * etaCal
	}
}

func stokesIQUVector(quatIndex []int32, quats []float64, weightIndex []int32, weights []float64, hwp []float64, nSamp int64, view intervals.List, epsilon []float64, cal float64) {
	sc := newIQUScratch(nSamp)
	for idet := range quatIndex {
		qRow := quats[int64(quatIndex[idet])*4*nSamp : (int64(quatIndex[idet])+1)*4*nSamp]
		wRow := weights[int64(weightIndex[idet])*3*nSamp : (int64(weightIndex[idet])+1)*3*nSamp]
		eta := (1.0 - epsilon[idet]) / (1.0 + epsilon[idet])
		for _, iv := range view {
			stokesIQURange(qRow, wRow, hwp, iv.First, iv.Last+1, eta, cal, sc)
		}
	}
}

func stokesIQUDevice(dev *device.Device, quatIndex []int32, quats []float64, weightIndex []int32, weights []float64, hwp []float64, nSamp int64, view intervals.List, epsilon []float64, cal float64) {
	sc := newIQUScratch(nSamp)
	for idet := range quatIndex {
		qRow := quats[int64(quatIndex[idet])*4*nSamp : (int64(quatIndex[idet])+1)*4*nSamp]
		wRow := weights[int64(weightIndex[idet])*3*nSamp : (int64(weightIndex[idet])+1)*3*nSamp]
		eta := (1.0 - epsilon[idet]) / (1.0 + epsilon[idet])
		for _, iv := range view {
			first := iv.First
			n := int(iv.Len())
			dev.ParallelFor(n, func(start, end int) {
				stokesIQURange(qRow, wRow, hwp, first+int64(start), first+int64(end), eta, cal, sc)
			})
		}
	}
}
