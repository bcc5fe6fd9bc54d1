package pixels

import "testing"

func TestNewSubmapMap(t *testing.T) {
	m, err := NewSubmapMap(16, 8, []int64{2, 5})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	if m.NLocalSubmap() != 2 || m.NGlobalSubmap() != 8 {
		t.Fatalf("got %d local / %d global submaps", m.NLocalSubmap(), m.NGlobalSubmap())
	}
	if _, err := NewSubmapMap(16, 8, []int64{9}); err == nil {
		t.Fatalf("accepted owned submap outside the sky")
	}
}

func TestResolve(t *testing.T) {
	m, err := NewSubmapMap(16, 8, []int64{2, 5})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	// Pixel 37 = submap 2, subpixel 5. Submap 2 is local slot 0.
	local, isub := m.Resolve(37)
	if local != 0 || isub != 5 {
		t.Fatalf("Resolve(37) = (%d,%d), want (0,5)", local, isub)
	}
	// Pixel 80 = submap 5, subpixel 0. Submap 5 is local slot 1.
	local, isub = m.Resolve(80)
	if local != 1 || isub != 0 {
		t.Fatalf("Resolve(80) = (%d,%d), want (1,0)", local, isub)
	}
	// Submap 0 is not owned.
	local, _ = m.Resolve(3)
	if local != NotOwned {
		t.Fatalf("Resolve(3) local = %d, want NotOwned", local)
	}
}

func TestZMap(t *testing.T) {
	m, err := NewSubmapMap(4, 4, []int64{1, 3})
	if err != nil {
		t.Fatalf("NewSubmapMap: %v", err)
	}
	z, err := NewZMap(m, 3)
	if err != nil {
		t.Fatalf("NewZMap: %v", err)
	}
	if len(z.Data) != 2*4*3 {
		t.Fatalf("zmap len = %d, want 24", len(z.Data))
	}
	z.Data[z.Offset(1, 2)+1] = 7
	if z.At(1, 2, 1) != 7 {
		t.Fatalf("At(1,2,1) = %v, want 7", z.At(1, 2, 1))
	}
	z.Reset()
	if z.At(1, 2, 1) != 0 {
		t.Fatalf("Reset left nonzero data")
	}
	if _, err := NewZMap(m, 2); err == nil {
		t.Fatalf("accepted nnz=2")
	}
}
