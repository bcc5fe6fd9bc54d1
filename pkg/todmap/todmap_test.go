package todmap

import (
	"testing"
)

func TestSessionScalarSmoke(t *testing.T) {
	s, err := NewSession(Config{Impl: "scalar"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()
	if s.Impl() != "scalar" {
		t.Fatalf("Impl = %q", s.Impl())
	}

	view := IntervalList{{First: 0, Last: 7}}
	obs, err := s.NewObservation(8, 3, 1, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	for i := 0; i < 8; i++ {
		obs.Quats[4*i+3] = 1 // identity pointing
		obs.DetData[i] = 0.5
	}

	if err := s.PointingWeights([]*Observation{obs}, 1.0); err != nil {
		t.Fatalf("PointingWeights: %v", err)
	}

	m, err := NewSubmapMap(8, 1, []int64{0})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	z, err := s.AllocZMap(m, 3)
	if err != nil {
		t.Fatalf("AllocZMap: %v", err)
	}
	if err := s.Bin(z, []*Observation{obs}, 0xFF, 0xFF); err != nil {
		t.Fatalf("Bin: %v", err)
	}
	// Eight samples of 0.5 land in pixel 0 with weights [1 1 0].
	if z.At(0, 0, 0) != 4 || z.At(0, 0, 1) != 4 || z.At(0, 0, 2) != 0 {
		t.Fatalf("zmap pixel 0 = [%v %v %v]", z.At(0, 0, 0), z.At(0, 0, 1), z.At(0, 0, 2))
	}
}

func TestSessionDeviceSmoke(t *testing.T) {
	s, err := NewSession(Config{Impl: "device", Workers: 2})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	view := IntervalList{{First: 0, Last: 9}}
	obs, err := s.NewObservation(10, 1, 1, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	tmpl, err := s.NewOffsetTemplate(obs, 5)
	if err != nil {
		t.Fatalf("NewOffsetTemplate: %v", err)
	}
	copy(tmpl.Amplitudes, []float64{2, 3})

	if err := s.TemplateAdd(obs, tmpl); err != nil {
		t.Fatalf("TemplateAdd: %v", err)
	}
	proj, err := s.NewOffsetTemplate(obs, 5)
	if err != nil {
		t.Fatalf("NewOffsetTemplate: %v", err)
	}
	if err := s.TemplateProject(obs, proj, 0); err != nil {
		t.Fatalf("TemplateProject: %v", err)
	}
	if proj.Amplitudes[0] != 10 || proj.Amplitudes[1] != 15 {
		t.Fatalf("projected amplitudes = %v, want [10 15]", proj.Amplitudes)
	}
	if err := s.TemplatePrecond(proj, proj.Amplitudes, proj.Amplitudes); err != nil {
		t.Fatalf("TemplatePrecond: %v", err)
	}
	if proj.Amplitudes[0] != 10 {
		t.Fatalf("identity precond changed amplitudes: %v", proj.Amplitudes)
	}
}

func TestSessionBadConfig(t *testing.T) {
	if _, err := NewSession(Config{Impl: "gpu"}); err == nil {
		t.Fatal("unknown family accepted")
	}
}

func TestSessionEnvDefault(t *testing.T) {
	t.Setenv("TODMAP_IMPL", "vector")
	s, err := NewSession(Config{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()
	if s.Impl() != "vector" {
		t.Fatalf("Impl = %q, want vector", s.Impl())
	}
}
