package runtime

import (
	"testing"

	"todmap-go/internal/device"
	"todmap-go/internal/intervals"
	"todmap-go/internal/kernels"
	"todmap-go/internal/pixels"
)

func scalarPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ex, err := kernels.NewExec(kernels.ImplScalar, nil)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	return NewPipeline(ex)
}

func TestNewObservation(t *testing.T) {
	view := intervals.List{{First: 0, Last: 7}}
	obs, err := NewObservation(8, 3, 2, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	if len(obs.Quats) != 2*8*4 || len(obs.Weights) != 2*8*3 || len(obs.DetData) != 2*8 {
		t.Fatalf("buffer sizes %d/%d/%d", len(obs.Quats), len(obs.Weights), len(obs.DetData))
	}
	for i, d := range obs.Detectors {
		if d.DataRow != int32(i) || d.Scale != 1 || d.Epsilon != 0 {
			t.Fatalf("detector %d = %+v", i, d)
		}
	}
	if _, err := NewObservation(8, 2, 1, view); err == nil {
		t.Fatal("nnz 2 accepted")
	}
	if _, err := NewObservation(8, 1, 1, intervals.List{{First: 0, Last: 8}}); err == nil {
		t.Fatal("view past end accepted")
	}
}

func TestPointingWeightsAndBin(t *testing.T) {
	p := scalarPipeline(t)
	view := intervals.List{{First: 0, Last: 3}}
	obs, err := NewObservation(4, 3, 1, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	// Identity pointing; unit signal.
	for i := 0; i < 4; i++ {
		obs.Quats[4*i+3] = 1
		obs.DetData[i] = 1
	}

	if err := p.PointingWeights([]*Observation{obs}, 2.0); err != nil {
		t.Fatalf("PointingWeights: %v", err)
	}
	// Identity quaternion, epsilon 0: weights [cal, cal, 0] per sample.
	if obs.Weights[0] != 2 || obs.Weights[1] != 2 || obs.Weights[2] != 0 {
		t.Fatalf("weights = %v", obs.Weights[:3])
	}

	m, err := pixels.NewSubmapMap(4, 1, []int64{0})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	z, err := pixels.NewZMap(m, 3)
	if err != nil {
		t.Fatalf("NewZMap: %v", err)
	}
	if err := p.Bin(z, []*Observation{obs}, 0xFF, 0xFF); err != nil {
		t.Fatalf("Bin: %v", err)
	}
	// All four samples land in pixel 0.
	if z.At(0, 0, 0) != 8 || z.At(0, 0, 1) != 8 || z.At(0, 0, 2) != 0 {
		t.Fatalf("zmap pixel 0 = [%v %v %v]", z.At(0, 0, 0), z.At(0, 0, 1), z.At(0, 0, 2))
	}

	// A second bin into a reset accumulator reproduces the first.
	z.Reset()
	if err := p.Bin(z, []*Observation{obs}, 0xFF, 0xFF); err != nil {
		t.Fatalf("Bin(reset): %v", err)
	}
	if z.At(0, 0, 0) != 8 {
		t.Fatalf("zmap after reset = %v, want 8", z.At(0, 0, 0))
	}
}

func TestBinNNZMismatch(t *testing.T) {
	p := scalarPipeline(t)
	view := intervals.List{{First: 0, Last: 3}}
	obs, err := NewObservation(4, 1, 1, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	m, err := pixels.NewSubmapMap(4, 1, []int64{0})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	z, err := pixels.NewZMap(m, 3)
	if err != nil {
		t.Fatalf("NewZMap: %v", err)
	}
	if err := p.Bin(z, []*Observation{obs}, 0, 0); err == nil {
		t.Fatal("nnz mismatch accepted")
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	p := scalarPipeline(t)
	view := intervals.List{{First: 0, Last: 5}}
	obs, err := NewObservation(6, 1, 2, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	tmpl, err := NewOffsetTemplate(nil, obs, 3)
	if err != nil {
		t.Fatalf("NewOffsetTemplate: %v", err)
	}
	if tmpl.NAmp() != 4 {
		t.Fatalf("NAmp = %d, want 4 (2 steps x 2 detectors)", tmpl.NAmp())
	}
	copy(tmpl.AmpsFor(0), []float64{1, 2})
	copy(tmpl.AmpsFor(1), []float64{10, 20})

	if err := p.TemplateAdd(obs, tmpl); err != nil {
		t.Fatalf("TemplateAdd: %v", err)
	}
	want := []float64{1, 1, 1, 2, 2, 2, 10, 10, 10, 20, 20, 20}
	for i := range want {
		if obs.DetData[i] != want[i] {
			t.Fatalf("det data = %v, want %v", obs.DetData, want)
		}
	}

	proj, err := NewOffsetTemplate(nil, obs, 3)
	if err != nil {
		t.Fatalf("NewOffsetTemplate: %v", err)
	}
	if err := p.TemplateProject(obs, proj, 0xFF); err != nil {
		t.Fatalf("TemplateProject: %v", err)
	}
	// Each amplitude collects its three samples.
	wantAmps := []float64{3, 6, 30, 60}
	for i := range wantAmps {
		if proj.Amplitudes[i] != wantAmps[i] {
			t.Fatalf("amplitudes = %v, want %v", proj.Amplitudes, wantAmps)
		}
	}

	// Identity preconditioner passes amplitudes through.
	out := make([]float64, proj.NAmp())
	if err := p.TemplatePrecond(proj, proj.Amplitudes, out); err != nil {
		t.Fatalf("TemplatePrecond: %v", err)
	}
	for i := range wantAmps {
		if out[i] != wantAmps[i] {
			t.Fatalf("preconditioned = %v, want %v", out, wantAmps)
		}
	}
}

func TestPipelineDevice(t *testing.T) {
	dev := device.New(2)
	defer dev.Close()
	ex, err := kernels.NewExec(kernels.ImplDevice, dev)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	p := NewPipeline(ex)

	view := intervals.List{{First: 0, Last: 5}}
	obs, err := NewObservationOn(dev, 6, 1, 1, view)
	if err != nil {
		t.Fatalf("NewObservationOn: %v", err)
	}
	tmpl, err := NewOffsetTemplate(dev, obs, 3)
	if err != nil {
		t.Fatalf("NewOffsetTemplate: %v", err)
	}
	copy(tmpl.Amplitudes, []float64{1, 2})

	if err := p.TemplateAdd(obs, tmpl); err != nil {
		t.Fatalf("TemplateAdd: %v", err)
	}
	want := []float64{1, 1, 1, 2, 2, 2}
	for i := range want {
		if obs.DetData[i] != want[i] {
			t.Fatalf("det data = %v, want %v", obs.DetData, want)
		}
	}

	// Host-allocated observations are refused by the offloaded family.
	host, err := NewObservation(6, 1, 1, view)
	if err != nil {
		t.Fatalf("NewObservation: %v", err)
	}
	if err := p.TemplateAdd(host, tmpl); err == nil {
		t.Fatal("host buffers accepted by device family")
	}
}
