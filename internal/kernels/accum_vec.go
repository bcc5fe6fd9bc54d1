package kernels

import (
	"github.com/ajroetker/go-highway/hwy"

	"todmap-go/internal/device"
	"todmap-go/internal/pixels"
)

// accumScratch stages one interval of per-sample target offsets and scaled
// contributions, indexed relative to the interval start. The apply pass
// walks it serially, so colliding map targets are never updated in parallel.
type accumScratch struct {
	scaled []float64
	zoff   []int64
	vals   []float64 // [n][nnz]
}

func newAccumScratch(n, nnz int64) *accumScratch {
	return &accumScratch{
		scaled: make([]float64, n),
		zoff:   make([]int64, n),
		vals:   make([]float64, n*nnz),
	}
}

// accumComputeRange fills scratch entries [start,end) (interval-relative)
// for one detector. Writes are disjoint per sample, so callers may split a
// range across workers.
func accumComputeRange(a *AccumArgs, sc *accumScratch, first int64, start, end int, pRow, wRow, dRow, fRow int64, scale float64) {
	z := a.ZMap
	nnz := z.NNZ

	data := a.DetData[dRow*a.NSamp+first+int64(start) : dRow*a.NSamp+first+int64(end)]
	scaled := sc.scaled[start:end]
	vscale := hwy.Set(scale)
	hwy.ProcessWithTail[float64](len(data),
		func(offset int) {
			hwy.Store(hwy.Mul(hwy.Load(data[offset:]), vscale), scaled[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			hwy.MaskStore(mask, hwy.Mul(hwy.MaskLoad(mask, data[offset:]), vscale), scaled[offset:])
		},
	)

	for i := start; i < end; i++ {
		isamp := first + int64(i)
		pixel := a.Pixels[pRow*a.NSamp+isamp]
		if !accumSampleOK(a, pixel, fRow, isamp) {
			sc.zoff[i] = -1
			continue
		}
		local, isub := z.Map.Resolve(pixel)
		if local == pixels.NotOwned {
			sc.zoff[i] = -1
			continue
		}
		sc.zoff[i] = z.Offset(local, isub)
		woff := wRow*nnz*a.NSamp + nnz*isamp
		for k := int64(0); k < nnz; k++ {
			sc.vals[int64(i)*nnz+k] = sc.scaled[i] * a.Weights[woff+k]
		}
	}
}

// accumStaged runs the compute phase (vectorized, optionally across the
// device pool) and then applies the staged updates in one serial ordered
// pass per interval.
func accumStaged(a *AccumArgs, dev *device.Device) {
	z := a.ZMap
	nnz := z.NNZ

	maxLen := int64(0)
	for _, iv := range a.View {
		if iv.Len() > maxLen {
			maxLen = iv.Len()
		}
	}
	sc := newAccumScratch(maxLen, nnz)

	for idet := range a.PixelIndex {
		pRow := int64(a.PixelIndex[idet])
		wRow := int64(a.WeightIndex[idet])
		dRow := int64(a.DataIndex[idet])
		fRow := int64(0)
		if a.DetFlags != nil {
			fRow = int64(a.FlagIndex[idet])
		}
		scale := a.DetScale[idet]
		for _, iv := range a.View {
			n := int(iv.Len())
			if dev != nil {
				dev.ParallelFor(n, func(start, end int) {
					accumComputeRange(a, sc, iv.First, start, end, pRow, wRow, dRow, fRow, scale)
				})
			} else {
				accumComputeRange(a, sc, iv.First, 0, n, pRow, wRow, dRow, fRow, scale)
			}
			for i := 0; i < n; i++ {
				zoff := sc.zoff[i]
				if zoff < 0 {
					continue
				}
				for k := int64(0); k < nnz; k++ {
					z.Data[zoff+k] += sc.vals[int64(i)*nnz+k]
				}
			}
		}
	}
}
