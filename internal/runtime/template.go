package runtime

import (
	"fmt"

	"todmap-go/internal/device"
)

// OffsetTemplate holds the step-baseline amplitudes of one observation.
// Every detector owns a window of ampsPerDet coefficients; inside a window,
// each view interval owns NAmpViews[iview] of them on the absolute step
// grid. OffsetVar is the diagonal preconditioner, by default identity.
type OffsetTemplate struct {
	StepLength int64
	NAmpViews  []int64

	Amplitudes []float64 // [nDet][ampsPerDet]
	OffsetVar  []float64

	ampsPerDet int64
}

// NewOffsetTemplate sizes a template for the observation's view with
// zero-valued amplitudes. A nil device allocates on the host.
func NewOffsetTemplate(dev *device.Device, obs *Observation, stepLength int64) (*OffsetTemplate, error) {
	nAmpViews, err := obs.View.AmpViews(stepLength)
	if err != nil {
		return nil, fmt.Errorf("offset template: %w", err)
	}
	perDet := int64(0)
	for _, n := range nAmpViews {
		perDet += n
	}
	total := perDet * int64(len(obs.Detectors))

	t := &OffsetTemplate{
		StepLength: stepLength,
		NAmpViews:  nAmpViews,
		ampsPerDet: perDet,
	}
	if dev != nil {
		if t.Amplitudes, err = dev.AllocF64(int(total)); err != nil {
			return nil, err
		}
		if t.OffsetVar, err = dev.AllocF64(int(total)); err != nil {
			return nil, err
		}
	} else {
		t.Amplitudes = make([]float64, total)
		t.OffsetVar = make([]float64, total)
	}
	for i := range t.OffsetVar {
		t.OffsetVar[i] = 1
	}
	return t, nil
}

// NAmp returns the total amplitude count across all detectors.
func (t *OffsetTemplate) NAmp() int64 {
	return int64(len(t.Amplitudes))
}

// AmpsFor returns the amplitude window of one detector.
func (t *OffsetTemplate) AmpsFor(idet int) []float64 {
	off := t.ampOffset(idet)
	return t.Amplitudes[off : off+t.ampsPerDet]
}

func (t *OffsetTemplate) ampOffset(idet int) int64 {
	return int64(idet) * t.ampsPerDet
}
