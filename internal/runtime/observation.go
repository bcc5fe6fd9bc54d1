// Package runtime holds the observation container and the operator passes
// that drive the map-making kernels: pointing weights, noise-weighted
// binning, and the offset-template operations. The passes iterate
// observations, then detectors, then view intervals; all numeric work
// happens in internal/kernels.
package runtime

import (
	"fmt"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
)

// Detector describes one logical detector of an observation: the physical
// rows it reads and writes through the index tables, plus its calibration
// parameters.
type Detector struct {
	Name string

	QuatRow   int32
	WeightRow int32
	PixelRow  int32
	DataRow   int32
	FlagRow   int32

	// Epsilon is the cross-polar response, Scale the noise weight applied
	// during binning.
	Epsilon float64
	Scale   float64
}

// Observation is one contiguous block of time-ordered data: flat physical
// buffers with nSamp-stride rows, addressed per detector through the index
// tables in Detectors. Several logical detectors may alias one physical row.
// DetFlags, SharedFlags and HWP are optional; nil disables the feature.
type Observation struct {
	NSamp int64
	NNZ   int64
	View  intervals.List

	Detectors []Detector

	Quats       []float64 // [nDet][nSamp][4]
	Weights     []float64 // [nDet][nSamp][nnz]
	Pixels      []int64   // [nDet][nSamp]
	DetData     []float64 // [nDet][nSamp]
	DetFlags    []uint8   // [nDet][nSamp]
	SharedFlags []uint8   // [nSamp]
	HWP         []float64 // [nSamp]
}

// NewObservation allocates host buffers for nDet detectors with one physical
// row each, identity index tables, epsilon 0 and scale 1. The caller fills
// the buffers afterwards.
func NewObservation(nSamp, nnz int64, nDet int, view intervals.List) (*Observation, error) {
	return newObservation(nil, nSamp, nnz, nDet, view)
}

// NewObservationOn is NewObservation with every sample buffer allocated on
// the device, for use with the offloaded kernel family.
func NewObservationOn(dev *device.Device, nSamp, nnz int64, nDet int, view intervals.List) (*Observation, error) {
	if dev == nil {
		return nil, fmt.Errorf("observation: nil device")
	}
	return newObservation(dev, nSamp, nnz, nDet, view)
}

func newObservation(dev *device.Device, nSamp, nnz int64, nDet int, view intervals.List) (*Observation, error) {
	if nSamp <= 0 || nDet <= 0 {
		return nil, fmt.Errorf("observation: %d samples, %d detectors", nSamp, nDet)
	}
	if nnz != 1 && nnz != 3 {
		return nil, fmt.Errorf("observation: nnz %d, want 1 or 3", nnz)
	}
	if err := view.Validate(nSamp); err != nil {
		return nil, fmt.Errorf("observation: %w", err)
	}

	allocF64 := func(n int64) ([]float64, error) {
		if dev != nil {
			return dev.AllocF64(int(n))
		}
		return make([]float64, n), nil
	}
	allocI64 := func(n int64) ([]int64, error) {
		if dev != nil {
			return dev.AllocI64(int(n))
		}
		return make([]int64, n), nil
	}
	allocU8 := func(n int64) ([]uint8, error) {
		if dev != nil {
			return dev.AllocU8(int(n))
		}
		return make([]uint8, n), nil
	}

	nd := int64(nDet)
	obs := &Observation{NSamp: nSamp, NNZ: nnz, View: view}
	var err error
	if obs.Quats, err = allocF64(nd * nSamp * 4); err != nil {
		return nil, err
	}
	if obs.Weights, err = allocF64(nd * nSamp * nnz); err != nil {
		return nil, err
	}
	if obs.Pixels, err = allocI64(nd * nSamp); err != nil {
		return nil, err
	}
	if obs.DetData, err = allocF64(nd * nSamp); err != nil {
		return nil, err
	}
	if obs.DetFlags, err = allocU8(nd * nSamp); err != nil {
		return nil, err
	}
	if obs.SharedFlags, err = allocU8(nSamp); err != nil {
		return nil, err
	}

	obs.Detectors = make([]Detector, nDet)
	for i := range obs.Detectors {
		row := int32(i)
		obs.Detectors[i] = Detector{
			Name:      fmt.Sprintf("det%03d", i),
			QuatRow:   row,
			WeightRow: row,
			PixelRow:  row,
			DataRow:   row,
			FlagRow:   row,
			Scale:     1,
		}
	}
	return obs, nil
}

func (o *Observation) quatIndex() []int32 {
	idx := make([]int32, len(o.Detectors))
	for i, d := range o.Detectors {
		idx[i] = d.QuatRow
	}
	return idx
}

func (o *Observation) weightIndex() []int32 {
	idx := make([]int32, len(o.Detectors))
	for i, d := range o.Detectors {
		idx[i] = d.WeightRow
	}
	return idx
}

func (o *Observation) pixelIndex() []int32 {
	idx := make([]int32, len(o.Detectors))
	for i, d := range o.Detectors {
		idx[i] = d.PixelRow
	}
	return idx
}

func (o *Observation) dataIndex() []int32 {
	idx := make([]int32, len(o.Detectors))
	for i, d := range o.Detectors {
		idx[i] = d.DataRow
	}
	return idx
}

func (o *Observation) flagIndex() []int32 {
	idx := make([]int32, len(o.Detectors))
	for i, d := range o.Detectors {
		idx[i] = d.FlagRow
	}
	return idx
}

func (o *Observation) epsilons() []float64 {
	eps := make([]float64, len(o.Detectors))
	for i, d := range o.Detectors {
		eps[i] = d.Epsilon
	}
	return eps
}

func (o *Observation) scales() []float64 {
	s := make([]float64, len(o.Detectors))
	for i, d := range o.Detectors {
		s[i] = d.Scale
	}
	return s
}
