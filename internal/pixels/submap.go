// Package pixels holds the distributed-map containers: the submap ownership
// table mapping global submaps to locally held ones, and the dense
// noise-weighted accumulator that the binning kernel scatters into.
package pixels

import (
	"errors"
	"fmt"
)

// NotOwned is the sentinel in a SubmapMap for submaps this process does not
// hold locally.
const NotOwned = int64(-1)

var ErrShape = errors.New("pixels: shape mismatch")

// SubmapMap resolves global submap numbers to local submap slots. Sky pixels
// are grouped into fixed-size submaps of NPixSubmap pixels; each process owns
// a subset.
type SubmapMap struct {
	NPixSubmap   int64
	globalToLoc  []int64
	nLocalSubmap int64
}

// NewSubmapMap builds the ownership table from the sorted list of global
// submap numbers held locally. Local slot i corresponds to owned[i].
func NewSubmapMap(nPixSubmap, nGlobalSubmap int64, owned []int64) (*SubmapMap, error) {
	if nPixSubmap <= 0 || nGlobalSubmap <= 0 {
		return nil, fmt.Errorf("%w: %d pixels per submap, %d global submaps", ErrShape, nPixSubmap, nGlobalSubmap)
	}
	g2l := make([]int64, nGlobalSubmap)
	for i := range g2l {
		g2l[i] = NotOwned
	}
	for local, global := range owned {
		if global < 0 || global >= nGlobalSubmap {
			return nil, fmt.Errorf("%w: owned submap %d out of %d", ErrShape, global, nGlobalSubmap)
		}
		g2l[global] = int64(local)
	}
	return &SubmapMap{
		NPixSubmap:   nPixSubmap,
		globalToLoc:  g2l,
		nLocalSubmap: int64(len(owned)),
	}, nil
}

// NLocalSubmap returns the number of locally held submaps.
func (m *SubmapMap) NLocalSubmap() int64 {
	return m.nLocalSubmap
}

// NGlobalSubmap returns the total number of submaps in the sky.
func (m *SubmapMap) NGlobalSubmap() int64 {
	return int64(len(m.globalToLoc))
}

// Resolve splits a global pixel into its local submap slot and sub-pixel
// index. The pixel must be non-negative and inside the sky; callers gate on
// pixel < 0 before resolving.
func (m *SubmapMap) Resolve(pixel int64) (localSubmap, isubpix int64) {
	globalSubmap := pixel / m.NPixSubmap
	return m.globalToLoc[globalSubmap], pixel - globalSubmap*m.NPixSubmap
}

// ZMap is the dense noise-weighted map accumulator, logically
// [nLocalSubmap][nPixSubmap][nnz] of float64 partial sums. It is mutated
// additively by the accumulation kernel and reset by the owning operator
// before a fresh pass.
type ZMap struct {
	NNZ  int64
	Map  *SubmapMap
	Data []float64
}

// NewZMap allocates a zeroed accumulator for the given ownership table.
// nnz is 1 for intensity-only maps, 3 for IQU.
func NewZMap(m *SubmapMap, nnz int64) (*ZMap, error) {
	if nnz != 1 && nnz != 3 {
		return nil, fmt.Errorf("%w: nnz %d, want 1 or 3", ErrShape, nnz)
	}
	return &ZMap{
		NNZ:  nnz,
		Map:  m,
		Data: make([]float64, m.nLocalSubmap*m.NPixSubmap*nnz),
	}, nil
}

// Offset returns the flat index of component 0 at (localSubmap, isubpix).
func (z *ZMap) Offset(localSubmap, isubpix int64) int64 {
	return z.NNZ * (localSubmap*z.Map.NPixSubmap + isubpix)
}

// At returns the accumulated value at (localSubmap, isubpix, k).
func (z *ZMap) At(localSubmap, isubpix, k int64) float64 {
	return z.Data[z.Offset(localSubmap, isubpix)+k]
}

// Reset zeroes the accumulator for a fresh accumulation pass.
func (z *ZMap) Reset() {
	for i := range z.Data {
		z.Data[i] = 0
	}
}

// Clone returns a deep copy, used by equivalence checks.
func (z *ZMap) Clone() *ZMap {
	dup := &ZMap{NNZ: z.NNZ, Map: z.Map, Data: make([]float64, len(z.Data))}
	copy(dup.Data, z.Data)
	return dup
}
