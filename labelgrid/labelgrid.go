/*
	Package labelgrid holds the dense 3d field of uint64 label scalars that
	the editing core mutates in place.  The grid is allocated once at session
	start and owned exclusively by the labeltable.Table; all other components
	go through the table for reads and writes.
*/
package labelgrid

import (
	"fmt"

	"github.com/janelia-flyem/voxedit/voxedit"
)

// BackgroundScalar is the reserved scalar for unlabeled voxels.  It is never
// created or destroyed by the editing core.
const BackgroundScalar uint64 = 0

// Grid is a dense 3d array of label scalars with fixed extents.  Coordinates
// are (x,y,z) with x varying fastest in the backing array.  Callers are
// responsible for keeping coordinates in range; the grid does no bounds
// checking on access, matching how the rest of the core treats in-range
// coordinates as a caller guarantee.
type Grid struct {
	size   voxedit.Point3d
	nxy    int64 // cached size[0]*size[1] for voxel indexing
	labels []uint64
}

// NewGrid allocates a zero-filled (all background) grid with the given
// dimensions.  Dimensions must be positive.
func NewGrid(size voxedit.Point3d) (*Grid, error) {
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return nil, fmt.Errorf("bad grid size %s: all dimensions must be positive", size)
	}
	return &Grid{
		size:   size,
		nxy:    int64(size[0]) * int64(size[1]),
		labels: make([]uint64, size.Prod()),
	}, nil
}

// Size returns the grid dimensions.
func (g *Grid) Size() voxedit.Point3d {
	return g.size
}

// NumVoxels returns the total number of voxels in the grid.
func (g *Grid) NumVoxels() int64 {
	return int64(len(g.labels))
}

// Contains returns true if the given point falls within the grid.
func (g *Grid) Contains(pt voxedit.Point3d) bool {
	return pt[0] >= 0 && pt[0] < g.size[0] &&
		pt[1] >= 0 && pt[1] < g.size[1] &&
		pt[2] >= 0 && pt[2] < g.size[2]
}

func (g *Grid) index(pt voxedit.Point3d) int64 {
	return int64(pt[2])*g.nxy + int64(pt[1])*int64(g.size[0]) + int64(pt[0])
}

// Get returns the scalar at the given point.
func (g *Grid) Get(pt voxedit.Point3d) uint64 {
	return g.labels[g.index(pt)]
}

// SetRaw writes a scalar with no bookkeeping.  It is the write path used when
// replaying undo/redo edits or reverting a cancelled operation, where any
// statistics adjustment happens separately from the voxel writes.
func (g *Grid) SetRaw(pt voxedit.Point3d, scalar uint64) {
	g.labels[g.index(pt)] = scalar
}

// Set writes a scalar and returns the previous value so callers can drive
// accumulator and undo bookkeeping from the old/new pair.
func (g *Grid) Set(pt voxedit.Point3d, scalar uint64) (old uint64) {
	i := g.index(pt)
	old = g.labels[i]
	g.labels[i] = scalar
	return
}

// ZSlice returns the backing subslice for one z plane, ordered y then x.
// The returned slice aliases grid memory: it is a read-only view for
// persistence and slice extraction, valid only while the caller holds the
// session's edit exclusion.
func (g *Grid) ZSlice(z int32) []uint64 {
	beg := int64(z) * g.nxy
	return g.labels[beg : beg+g.nxy]
}

// SetZSlice overwrites one z plane, used when reconstituting a grid from a
// session snapshot.  The passed values must hold exactly nx*ny scalars.
func (g *Grid) SetZSlice(z int32, vals []uint64) error {
	if int64(len(vals)) != g.nxy {
		return fmt.Errorf("z slice has %d values, expected %d", len(vals), g.nxy)
	}
	copy(g.labels[int64(z)*g.nxy:], vals)
	return nil
}
