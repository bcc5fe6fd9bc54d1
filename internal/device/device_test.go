package device

import "testing"

func TestResidency(t *testing.T) {
	d := New(2)
	defer d.Close()

	buf, err := d.AllocF64(64)
	if err != nil {
		t.Fatalf("AllocF64: %v", err)
	}
	if !d.ResidentF64(buf) {
		t.Fatalf("device allocation not resident")
	}
	if !d.ResidentF64(buf[8:16]) {
		t.Fatalf("sub-slice of device allocation not resident")
	}

	host := make([]float64, 64)
	if d.ResidentF64(host) {
		t.Fatalf("host allocation reported resident")
	}
	if !d.ResidentF64(nil) {
		t.Fatalf("empty buffer should be trivially resident")
	}

	flags, err := d.AllocU8(16)
	if err != nil {
		t.Fatalf("AllocU8: %v", err)
	}
	if !d.ResidentU8(flags) {
		t.Fatalf("flag allocation not resident")
	}
	idx, err := d.AllocI64(4)
	if err != nil {
		t.Fatalf("AllocI64: %v", err)
	}
	if !d.ResidentI64(idx) {
		t.Fatalf("index allocation not resident")
	}
}

func TestParallelFor(t *testing.T) {
	d := New(4)
	defer d.Close()

	out := make([]int, 1000)
	d.ParallelFor(len(out), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = i
		}
	})
	for i, v := range out {
		if v != i {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
}

func TestClose(t *testing.T) {
	d := New(1)
	buf, err := d.AllocF64(8)
	if err != nil {
		t.Fatalf("AllocF64: %v", err)
	}
	d.Close()
	if d.ResidentF64(buf) {
		t.Fatalf("buffer still resident after Close")
	}
	if _, err := d.AllocF64(8); err == nil {
		t.Fatalf("Alloc succeeded on closed device")
	}
}
