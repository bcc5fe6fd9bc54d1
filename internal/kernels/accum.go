package kernels

import (
	"fmt"

	"todmap-go/internal/intervals"
	"todmap-go/internal/pixels"
)

// AccumArgs carries the operands of the noise-weighted accumulation kernel.
// All per-sample buffers are flat with nSamp-stride rows selected through
// the index tables; DetFlags and SharedFlags are optional, nil disables the
// corresponding check.
type AccumArgs struct {
	ZMap *pixels.ZMap

	PixelIndex []int32
	Pixels     []int64 // [nPixelRows][nSamp]

	WeightIndex []int32
	Weights     []float64 // [nWeightRows][nSamp][nnz]

	DataIndex []int32
	DetData   []float64 // [nDataRows][nSamp]

	FlagIndex   []int32
	DetFlags    []uint8 // [nFlagRows][nSamp], nil when detector flags are disabled
	DetFlagMask uint8

	SharedFlags    []uint8 // [nSamp], nil when shared flags are disabled
	SharedFlagMask uint8

	DetScale []float64 // per logical detector

	NSamp int64
	View  intervals.List
}

// AccumulateNoiseWeighted scatter-adds calibrated, flag-filtered detector
// samples into the submap accumulator. A sample contributes iff its pixel is
// non-negative, resolves to a locally owned submap, and both flag checks
// pass ((flag & mask) == 0). Accumulation
// into the same map location is commutative addition; duplicate targets are
// expected, so every family serializes the scatter phase.
func (ex *Exec) AccumulateNoiseWeighted(a *AccumArgs) error {
	nDet := len(a.PixelIndex)
	if nDet == 0 || len(a.View) == 0 {
		return nil
	}
	if len(a.WeightIndex) != nDet || len(a.DataIndex) != nDet || len(a.DetScale) != nDet {
		return fmt.Errorf("accumulate: index tables %d/%d/%d and %d scales for %d detectors: %w",
			len(a.PixelIndex), len(a.WeightIndex), len(a.DataIndex), len(a.DetScale), nDet, ErrShape)
	}
	if a.ZMap == nil {
		return fmt.Errorf("accumulate: nil zmap: %w", ErrShape)
	}
	nnz := a.ZMap.NNZ
	nPixelRows, err := rowCount("pixels", int64(len(a.Pixels)), a.NSamp, 1)
	if err != nil {
		return err
	}
	nWeightRows, err := rowCount("weights", int64(len(a.Weights)), a.NSamp, nnz)
	if err != nil {
		return err
	}
	nDataRows, err := rowCount("det_data", int64(len(a.DetData)), a.NSamp, 1)
	if err != nil {
		return err
	}
	if err := checkIndex("pixel_index", a.PixelIndex, nPixelRows); err != nil {
		return err
	}
	if err := checkIndex("weight_index", a.WeightIndex, nWeightRows); err != nil {
		return err
	}
	if err := checkIndex("data_index", a.DataIndex, nDataRows); err != nil {
		return err
	}
	if a.DetFlags != nil {
		if len(a.FlagIndex) != nDet {
			return fmt.Errorf("accumulate: flag index table %d for %d detectors: %w", len(a.FlagIndex), nDet, ErrShape)
		}
		nFlagRows, err := rowCount("det_flags", int64(len(a.DetFlags)), a.NSamp, 1)
		if err != nil {
			return err
		}
		if err := checkIndex("flag_index", a.FlagIndex, nFlagRows); err != nil {
			return err
		}
	}
	if a.SharedFlags != nil && int64(len(a.SharedFlags)) != a.NSamp {
		return fmt.Errorf("accumulate: shared flags length %d, %d samples: %w", len(a.SharedFlags), a.NSamp, ErrShape)
	}
	if err := a.View.Validate(a.NSamp); err != nil {
		return fmt.Errorf("accumulate: %w", err)
	}
	if err := ex.requireResident("accumulate",
		[][]float64{a.ZMap.Data, a.Weights, a.DetData},
		[][]int64{a.Pixels},
		[][]uint8{a.DetFlags, a.SharedFlags}); err != nil {
		return err
	}

	switch ex.impl {
	case ImplScalar:
		accumScalar(a)
	case ImplVector:
		accumStaged(a, nil)
	case ImplDevice:
		accumStaged(a, ex.dev)
	}
	return nil
}

// accumSampleOK applies the pixel and flag gates for one sample.
func accumSampleOK(a *AccumArgs, pixel int64, fRow int64, isamp int64) bool {
	if pixel < 0 {
		return false
	}
	if a.DetFlags != nil && a.DetFlags[fRow*a.NSamp+isamp]&a.DetFlagMask != 0 {
		return false
	}
	if a.SharedFlags != nil && a.SharedFlags[isamp]&a.SharedFlagMask != 0 {
		return false
	}
	return true
}

func accumScalar(a *AccumArgs) {
	z := a.ZMap
	nnz := z.NNZ
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
			for isamp := iv.First; isamp <= iv.Last; isamp++ {
				pixel := a.Pixels[pRow*a.NSamp+isamp]
				if !accumSampleOK(a, pixel, fRow, isamp) {
					continue
				}
				local, isub := z.Map.Resolve(pixel)
				if local == pixels.NotOwned {
					continue
				}
				zoff := z.Offset(local, isub)
				woff := wRow*nnz*a.NSamp + nnz*isamp
				scaled := a.DetData[dRow*a.NSamp+isamp] * scale
				for k := int64(0); k < nnz; k++ {
					z.Data[zoff+k] += scaled * a.Weights[woff+k]
				}
			}
		}
	}
}
