package runtime

import (
	"fmt"

	"todmap-go/internal/kernels"
	"todmap-go/internal/pixels"
)

// Pipeline runs the operator passes under one kernel execution handle.
type Pipeline struct {
	ex *kernels.Exec
}

func NewPipeline(ex *kernels.Exec) *Pipeline {
	return &Pipeline{ex: ex}
}

// Exec returns the execution handle the passes run under.
func (p *Pipeline) Exec() *kernels.Exec {
	return p.ex
}

// PointingWeights fills the weight rows of every observation: the IQU
// response when the observation carries three non-zeros per pixel, the
// intensity constant otherwise.
func (p *Pipeline) PointingWeights(obss []*Observation, cal float64) error {
	for i, obs := range obss {
		var err error
		if obs.NNZ == 3 {
			err = p.ex.StokesWeightsIQU(obs.quatIndex(), obs.Quats, obs.weightIndex(), obs.Weights,
				obs.HWP, obs.NSamp, obs.View, obs.epsilons(), cal)
		} else {
			err = p.ex.StokesWeightsI(obs.weightIndex(), obs.Weights, obs.NSamp, obs.View, cal)
		}
		if err != nil {
			return fmt.Errorf("observation %d: %w", i, err)
		}
	}
	return nil
}

// Bin accumulates every observation's flag-filtered, noise-scaled samples
// into the shared submap accumulator.
func (p *Pipeline) Bin(z *pixels.ZMap, obss []*Observation, detFlagMask, sharedFlagMask uint8) error {
	for i, obs := range obss {
		if obs.NNZ != z.NNZ {
			return fmt.Errorf("observation %d: nnz %d into accumulator nnz %d", i, obs.NNZ, z.NNZ)
		}
		args := &kernels.AccumArgs{
			ZMap:           z,
			PixelIndex:     obs.pixelIndex(),
			Pixels:         obs.Pixels,
			WeightIndex:    obs.weightIndex(),
			Weights:        obs.Weights,
			DataIndex:      obs.dataIndex(),
			DetData:        obs.DetData,
			FlagIndex:      obs.flagIndex(),
			DetFlags:       obs.DetFlags,
			DetFlagMask:    detFlagMask,
			SharedFlags:    obs.SharedFlags,
			SharedFlagMask: sharedFlagMask,
			DetScale:       obs.scales(),
			NSamp:          obs.NSamp,
			View:           obs.View,
		}
		if err := p.ex.AccumulateNoiseWeighted(args); err != nil {
			return fmt.Errorf("observation %d: %w", i, err)
		}
	}
	return nil
}

// TemplateAdd accumulates the template's amplitudes into every detector
// timestream of the observation.
func (p *Pipeline) TemplateAdd(obs *Observation, tmpl *OffsetTemplate) error {
	for idet, det := range obs.Detectors {
		err := p.ex.OffsetAddToSignal(tmpl.StepLength, tmpl.ampOffset(idet), tmpl.NAmpViews,
			tmpl.Amplitudes, det.DataRow, obs.DetData, obs.NSamp, obs.View)
		if err != nil {
			return fmt.Errorf("detector %s: %w", det.Name, err)
		}
	}
	return nil
}

// TemplateProject accumulates every detector timestream into the template's
// amplitudes, skipping samples whose detector flag intersects flagMask. A
// zero mask with nil observation flags projects everything.
func (p *Pipeline) TemplateProject(obs *Observation, tmpl *OffsetTemplate, flagMask uint8) error {
	for idet, det := range obs.Detectors {
		flagRow := int32(-1)
		if obs.DetFlags != nil {
			flagRow = det.FlagRow
		}
		err := p.ex.OffsetProjectSignal(det.DataRow, obs.DetData, flagRow, obs.DetFlags, flagMask,
			tmpl.StepLength, tmpl.ampOffset(idet), tmpl.NAmpViews, tmpl.Amplitudes, obs.NSamp, obs.View)
		if err != nil {
			return fmt.Errorf("detector %s: %w", det.Name, err)
		}
	}
	return nil
}

// TemplatePrecond applies the template's diagonal preconditioner to an
// amplitude vector. ampIn and ampOut may alias.
func (p *Pipeline) TemplatePrecond(tmpl *OffsetTemplate, ampIn, ampOut []float64) error {
	return p.ex.OffsetApplyDiagPrecond(tmpl.OffsetVar, ampIn, ampOut)
}
