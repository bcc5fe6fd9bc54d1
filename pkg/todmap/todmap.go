// Package todmap is the public surface of the map-making kernel library.
// A Session binds an implementation family (and, for the offloaded family,
// a compute device) and exposes the operator passes over observations.
package todmap

import (
	"fmt"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
	"todmap-go/internal/kernels"
	"todmap-go/internal/pixels"
	"todmap-go/internal/runtime"
)

// Re-exported domain types. The internal packages own the semantics; the
// facade only wires them together.
type (
	Interval       = intervals.Interval
	IntervalList   = intervals.List
	SubmapMap      = pixels.SubmapMap
	ZMap           = pixels.ZMap
	Observation    = runtime.Observation
	Detector       = runtime.Detector
	OffsetTemplate = runtime.OffsetTemplate
)

// NotOwned marks pixels outside the local submap set.
const NotOwned = pixels.NotOwned

// NewSubmapMap builds the global-to-local submap translation.
func NewSubmapMap(nPixSubmap, nGlobalSubmap int64, owned []int64) (*SubmapMap, error) {
	return pixels.NewSubmapMap(nPixSubmap, nGlobalSubmap, owned)
}

// NewZMap allocates a zeroed accumulator over the locally owned submaps.
func NewZMap(m *SubmapMap, nnz int64) (*ZMap, error) {
	return pixels.NewZMap(m, nnz)
}

// Config selects the implementation family for a session. An empty Impl
// reads TODMAP_IMPL and falls back to scalar. Workers sizes the device pool
// and is ignored by the host families; zero falls back to TODMAP_WORKERS,
// then GOMAXPROCS.
type Config struct {
	Impl    string
	Workers int
}

// Session owns the execution handle and, for the device family, the device
// itself. Close releases the device pool; host sessions Close as a no-op.
type Session struct {
	ex   *kernels.Exec
	dev  *device.Device
	pipe *runtime.Pipeline
}

func NewSession(cfg Config) (*Session, error) {
	var impl kernels.Impl
	if cfg.Impl == "" {
		impl = kernels.ImplFromEnv(kernels.ImplScalar)
	} else {
		var err error
		impl, err = kernels.ParseImpl(cfg.Impl)
		if err != nil {
			return nil, err
		}
	}
	var dev *device.Device
	if impl == kernels.ImplDevice {
		dev = device.New(cfg.Workers)
	}
	ex, err := kernels.NewExec(impl, dev)
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		return nil, err
	}
	return &Session{ex: ex, dev: dev, pipe: runtime.NewPipeline(ex)}, nil
}

func (s *Session) Close() {
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
}

// Impl reports the active implementation family name.
func (s *Session) Impl() string {
	return s.ex.Impl().String()
}

// Capabilities reports the host SIMD feature set.
func Capabilities() string {
	return device.Capabilities()
}

// NewObservation allocates an observation sized for the session: on the
// device for the offloaded family, on the host otherwise.
func (s *Session) NewObservation(nSamp, nnz int64, nDet int, view IntervalList) (*Observation, error) {
	if s.dev != nil {
		return runtime.NewObservationOn(s.dev, nSamp, nnz, nDet, view)
	}
	return runtime.NewObservation(nSamp, nnz, nDet, view)
}

// NewOffsetTemplate sizes a zeroed offset template for the observation.
func (s *Session) NewOffsetTemplate(obs *Observation, stepLength int64) (*OffsetTemplate, error) {
	return runtime.NewOffsetTemplate(s.dev, obs, stepLength)
}

// AllocZMap allocates the accumulator storage where the session computes:
// the device family requires the zmap data to be device resident.
func (s *Session) AllocZMap(m *SubmapMap, nnz int64) (*ZMap, error) {
	z, err := pixels.NewZMap(m, nnz)
	if err != nil {
		return nil, err
	}
	if s.dev != nil {
		data, err := s.dev.AllocF64(len(z.Data))
		if err != nil {
			return nil, fmt.Errorf("zmap: %w", err)
		}
		z.Data = data
	}
	return z, nil
}

// PointingWeights computes the Stokes weights of every observation.
func (s *Session) PointingWeights(obss []*Observation, cal float64) error {
	return s.pipe.PointingWeights(obss, cal)
}

// Bin accumulates the observations into the submap accumulator.
func (s *Session) Bin(z *ZMap, obss []*Observation, detFlagMask, sharedFlagMask uint8) error {
	return s.pipe.Bin(z, obss, detFlagMask, sharedFlagMask)
}

// TemplateAdd accumulates template amplitudes into the detector timestreams.
func (s *Session) TemplateAdd(obs *Observation, tmpl *OffsetTemplate) error {
	return s.pipe.TemplateAdd(obs, tmpl)
}

// TemplateProject accumulates the detector timestreams into template
// amplitudes, skipping samples flagged under flagMask.
func (s *Session) TemplateProject(obs *Observation, tmpl *OffsetTemplate, flagMask uint8) error {
	return s.pipe.TemplateProject(obs, tmpl, flagMask)
}

// TemplatePrecond applies the template's diagonal preconditioner.
func (s *Session) TemplatePrecond(tmpl *OffsetTemplate, ampIn, ampOut []float64) error {
	return s.pipe.TemplatePrecond(tmpl, ampIn, ampOut)
}
