package kernels

import (
	"fmt"
	"math"

	"todmap-go/internal/intervals"
)

// StokesWeightsI fills the intensity-only weight rows with the calibration
// constant over every sample inside the view. Samples outside the view are
// left untouched. weights is flat [nWeightRows][nSamp].
//
// Neither Stokes kernel checks flags: flagged samples carry a null rotation
// quaternion upstream, so their weights are well defined.
func (ex *Exec) StokesWeightsI(weightIndex []int32, weights []float64, nSamp int64, view intervals.List, cal float64) error {
	if len(weightIndex) == 0 || len(view) == 0 {
		return nil
	}
	nRows, err := rowCount("weights", int64(len(weights)), nSamp, 1)
	if err != nil {
		return err
	}
	if err := checkIndex("weight_index", weightIndex, nRows); err != nil {
		return err
	}
	if err := view.Validate(nSamp); err != nil {
		return fmt.Errorf("stokes_weights_I: %w", err)
	}
	if err := ex.requireResident("stokes_weights_I", [][]float64{weights}, nil, nil); err != nil {
		return err
	}

	switch ex.impl {
	case ImplScalar:
		stokesIScalar(weightIndex, weights, nSamp, view, cal)
	case ImplVector:
		stokesIVector(weightIndex, weights, nSamp, view, cal)
	case ImplDevice:
		stokesIDevice(ex.dev, weightIndex, weights, nSamp, view, cal)
	}
	return nil
}

func stokesIScalar(weightIndex []int32, weights []float64, nSamp int64, view intervals.List, cal float64) {
	for _, wIdx := range weightIndex {
		row := weights[int64(wIdx)*nSamp : (int64(wIdx)+1)*nSamp]
		for _, iv := range view {
			for isamp := iv.First; isamp <= iv.Last; isamp++ {
				row[isamp] = cal
			}
		}
	}
}

// StokesWeightsIQU computes the [I, Q, U] polarization response for every
// sample inside the view. quats is flat [nQuatRows][nSamp][4], weights is
// flat [nWeightRows][nSamp][3]. hwp is the half-wave-plate angle per sample;
// nil means no HWP (treated as all zero). epsilon holds the cross-polar
// response per logical detector.
func (ex *Exec) StokesWeightsIQU(quatIndex []int32, quats []float64, weightIndex []int32, weights []float64, hwp []float64, nSamp int64, view intervals.List, epsilon []float64, cal float64) error {
	nDet := len(quatIndex)
	if nDet == 0 || len(view) == 0 {
		return nil
	}
	if len(weightIndex) != nDet || len(epsilon) != nDet {
		return fmt.Errorf("stokes_weights_IQU: %d detectors, %d weight rows, %d epsilon: %w",
			nDet, len(weightIndex), len(epsilon), ErrShape)
	}
	nQuatRows, err := rowCount("quats", int64(len(quats)), nSamp, 4)
	if err != nil {
		return err
	}
	nWeightRows, err := rowCount("weights", int64(len(weights)), nSamp, 3)
	if err != nil {
		return err
	}
	if err := checkIndex("quat_index", quatIndex, nQuatRows); err != nil {
		return err
	}
	if err := checkIndex("weight_index", weightIndex, nWeightRows); err != nil {
		return err
	}
	if hwp != nil && int64(len(hwp)) != nSamp {
		return fmt.Errorf("stokes_weights_IQU: hwp length %d, %d samples: %w", len(hwp), nSamp, ErrShape)
	}
	if err := view.Validate(nSamp); err != nil {
		return fmt.Errorf("stokes_weights_IQU: %w", err)
	}
	if err := ex.requireResident("stokes_weights_IQU", [][]float64{quats, weights, hwp}, nil, nil); err != nil {
		return err
	}

	switch ex.impl {
	case ImplScalar:
		stokesIQUScalar(quatIndex, quats, weightIndex, weights, hwp, nSamp, view, epsilon, cal)
	case ImplVector:
		stokesIQUVector(quatIndex, quats, weightIndex, weights, hwp, nSamp, view, epsilon, cal)
	case ImplDevice:
		stokesIQUDevice(ex.dev, quatIndex, quats, weightIndex, weights, hwp, nSamp, view, epsilon, cal)
	}
	return nil
}

func stokesIQUScalar(quatIndex []int32, quats []float64, weightIndex []int32, weights []float64, hwp []float64, nSamp int64, view intervals.List, epsilon []float64, cal float64) {
	for idet := range quatIndex {
		qRow := int64(quatIndex[idet])
		wRow := int64(weightIndex[idet])
		eta := (1.0 - epsilon[idet]) / (1.0 + epsilon[idet])
		for _, iv := range view {
			for isamp := iv.First; isamp <= iv.Last; isamp++ {
				q := quats[qRow*4*nSamp+4*isamp : qRow*4*nSamp+4*isamp+4]
				by, bx := polAngleTerms(q)
				ang := math.Atan2(by, bx)
				if hwp != nil {
					ang += 2.0 * hwp[isamp]
				}
				ang *= 2.0
				sin, cos := math.Sincos(ang)
				off := wRow*3*nSamp + 3*isamp
				weights[off] = cal
				weights[off+1] = cos * eta * cal
				weights[off+2] = sin * eta * cal
			}
		}
	}
}
