package kernels

import (
	"fmt"

	"todmap-go/internal/intervals"
)

// validateOffsetTemplate checks the amplitude window bookkeeping shared by
// the add and project operations. Each interval owns a window of
// nAmpViews[iview] coefficients starting at the running offset; steps sit on
// the absolute sample grid (isamp / stepLength) but amplitude numbering is
// interval-local, so a step never spans an interval boundary.
func validateOffsetTemplate(op string, stepLength, ampOffset int64, nAmpViews []int64, nAmp int64, view intervals.List, nSamp int64) error {
	if stepLength <= 0 {
		return fmt.Errorf("%s: step length %d: %w", op, stepLength, ErrShape)
	}
	if len(nAmpViews) != len(view) {
		return fmt.Errorf("%s: %d amplitude views for %d intervals: %w", op, len(nAmpViews), len(view), ErrShape)
	}
	if ampOffset < 0 {
		return fmt.Errorf("%s: amplitude offset %d: %w", op, ampOffset, ErrIndexRange)
	}
	if err := view.Validate(nSamp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	offset := ampOffset
	for i, iv := range view {
		needed := iv.Last/stepLength - iv.First/stepLength + 1
		if nAmpViews[i] < needed {
			return fmt.Errorf("%s: interval %d needs %d amplitudes, view owns %d: %w", op, i, needed, nAmpViews[i], ErrShape)
		}
		if offset+needed > nAmp {
			return fmt.Errorf("%s: interval %d reaches amplitude %d of %d: %w", op, i, offset+needed, nAmp, ErrIndexRange)
		}
		offset += nAmpViews[i]
	}
	return nil
}

// OffsetAddToSignal accumulates offset-template amplitudes into a detector
// timestream: every sample inside the view receives the amplitude of the
// step it falls in. Purely additive, no flag check. detData is flat
// [nDataRows][nSamp]; the target row is dataIndex.
func (ex *Exec) OffsetAddToSignal(stepLength, ampOffset int64, nAmpViews []int64, amplitudes []float64, dataIndex int32, detData []float64, nSamp int64, view intervals.List) error {
	if len(view) == 0 {
		return nil
	}
	nDataRows, err := rowCount("det_data", int64(len(detData)), nSamp, 1)
	if err != nil {
		return err
	}
	if err := checkIndex("data_index", []int32{dataIndex}, nDataRows); err != nil {
		return err
	}
	if err := validateOffsetTemplate("offset_add_to_signal", stepLength, ampOffset, nAmpViews, int64(len(amplitudes)), view, nSamp); err != nil {
		return err
	}
	if err := ex.requireResident("offset_add_to_signal", [][]float64{amplitudes, detData}, nil, nil); err != nil {
		return err
	}

	row := detData[int64(dataIndex)*nSamp : (int64(dataIndex)+1)*nSamp]
	switch ex.impl {
	case ImplScalar:
		offsetAddScalar(stepLength, ampOffset, nAmpViews, amplitudes, row, view)
	case ImplVector:
		offsetAddVector(stepLength, ampOffset, nAmpViews, amplitudes, row, view, nil)
	case ImplDevice:
		offsetAddVector(stepLength, ampOffset, nAmpViews, amplitudes, row, view, ex.dev)
	}
	return nil
}

func offsetAddScalar(stepLength, ampOffset int64, nAmpViews []int64, amplitudes, row []float64, view intervals.List) {
	offset := ampOffset
	for iview, iv := range view {
		base := iv.First / stepLength
		for isamp := iv.First; isamp <= iv.Last; isamp++ {
			row[isamp] += amplitudes[offset+isamp/stepLength-base]
		}
		offset += nAmpViews[iview]
	}
}

// OffsetProjectSignal is the adjoint of OffsetAddToSignal: timestream samples
// are accumulated into the amplitude of their step. Samples whose detector
// flag intersects flagMask contribute zero; flagIndex < 0 disables the flag
// check entirely. Many samples share one amplitude by construction, so every
// family serializes the amplitude updates.
func (ex *Exec) OffsetProjectSignal(dataIndex int32, detData []float64, flagIndex int32, flagData []uint8, flagMask uint8, stepLength, ampOffset int64, nAmpViews []int64, amplitudes []float64, nSamp int64, view intervals.List) error {
	if len(view) == 0 {
		return nil
	}
	nDataRows, err := rowCount("det_data", int64(len(detData)), nSamp, 1)
	if err != nil {
		return err
	}
	if err := checkIndex("data_index", []int32{dataIndex}, nDataRows); err != nil {
		return err
	}
	useFlags := flagIndex >= 0
	if useFlags {
		nFlagRows, err := rowCount("flag_data", int64(len(flagData)), nSamp, 1)
		if err != nil {
			return err
		}
		if err := checkIndex("flag_index", []int32{flagIndex}, nFlagRows); err != nil {
			return err
		}
	}
	if err := validateOffsetTemplate("offset_project_signal", stepLength, ampOffset, nAmpViews, int64(len(amplitudes)), view, nSamp); err != nil {
		return err
	}
	resF64 := [][]float64{amplitudes, detData}
	var resU8 [][]uint8
	if useFlags {
		resU8 = [][]uint8{flagData}
	}
	if err := ex.requireResident("offset_project_signal", resF64, nil, resU8); err != nil {
		return err
	}

	row := detData[int64(dataIndex)*nSamp : (int64(dataIndex)+1)*nSamp]
	var flagRow []uint8
	if useFlags {
		flagRow = flagData[int64(flagIndex)*nSamp : (int64(flagIndex)+1)*nSamp]
	}
	switch ex.impl {
	case ImplScalar:
		offsetProjectScalar(row, flagRow, flagMask, stepLength, ampOffset, nAmpViews, amplitudes, view)
	case ImplVector:
		offsetProjectVector(row, flagRow, flagMask, stepLength, ampOffset, nAmpViews, amplitudes, view, nil)
	case ImplDevice:
		offsetProjectVector(row, flagRow, flagMask, stepLength, ampOffset, nAmpViews, amplitudes, view, ex.dev)
	}
	return nil
}

func offsetProjectScalar(row []float64, flagRow []uint8, flagMask uint8, stepLength, ampOffset int64, nAmpViews []int64, amplitudes []float64, view intervals.List) {
	offset := ampOffset
	for iview, iv := range view {
		base := iv.First / stepLength
		for isamp := iv.First; isamp <= iv.Last; isamp++ {
			if flagRow != nil && flagRow[isamp]&flagMask != 0 {
				continue
			}
			amplitudes[offset+isamp/stepLength-base] += row[isamp]
		}
		offset += nAmpViews[iview]
	}
}

// OffsetApplyDiagPrecond applies the diagonal preconditioner of the
// offset-template solver: ampOut[i] = ampIn[i] * offsetVar[i]. A pure
// Hadamard product, called once per solver iteration.
func (ex *Exec) OffsetApplyDiagPrecond(offsetVar, ampIn, ampOut []float64) error {
	n := len(ampIn)
	if len(offsetVar) != n || len(ampOut) != n {
		return fmt.Errorf("offset_apply_diag_precond: lengths %d/%d/%d: %w", len(offsetVar), n, len(ampOut), ErrShape)
	}
	if err := ex.requireResident("offset_apply_diag_precond", [][]float64{offsetVar, ampIn, ampOut}, nil, nil); err != nil {
		return err
	}

	switch ex.impl {
	case ImplScalar:
		for i := 0; i < n; i++ {
			ampOut[i] = ampIn[i] * offsetVar[i]
		}
	case ImplVector:
		precondRange(offsetVar, ampIn, ampOut, 0, n)
	case ImplDevice:
		ex.dev.ParallelFor(n, func(start, end int) {
			precondRange(offsetVar, ampIn, ampOut, start, end)
		})
	}
	return nil
}
