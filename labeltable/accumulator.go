package labeltable

import (
	"github.com/janelia-flyem/voxedit/voxedit"
)

// ScalarDelta accumulates the net effect of one operation on a single scalar:
// a signed voxel count, the signed sum of touched coordinates, and the
// grow-only extent of every voxel that gained or lost this scalar.
type ScalarDelta struct {
	NumVoxels int64
	CoordSum  voxedit.Vector3d
	Touched   voxedit.Extents3d
}

// Accumulator batches per-voxel edits during one operation so the table is
// adjusted once at commit instead of per voxel.  Voxel writes during the
// operation go straight to the grid; only the statistics are deferred.
//
// The zero value is idle.  Start begins recording, then exactly one of
// Commit or Cancel ends it.
type Accumulator struct {
	deltas    map[uint64]*ScalarDelta
	recording bool
}

// Recording reports whether an operation is in flight.
func (a *Accumulator) Recording() bool {
	return a.recording
}

// Start begins recording deltas for a new operation.
func (a *Accumulator) Start() {
	if a.recording {
		voxedit.Criticalf("accumulator started while already recording; previous deltas dropped\n")
	}
	a.deltas = make(map[uint64]*ScalarDelta)
	a.recording = true
}

// Note records a single voxel transition from old to new scalar at pt.
// The old scalar loses the voxel, the new scalar gains it, and both have
// their touched extents grown to cover pt.
func (a *Accumulator) Note(pt voxedit.Point3d, old, new uint64) {
	if !a.recording || old == new {
		return
	}
	vec := pt.Vector()

	d := a.delta(old)
	d.NumVoxels--
	d.CoordSum = d.CoordSum.Subtract(vec)
	d.Touched.Extend(pt)

	d = a.delta(new)
	d.NumVoxels++
	d.CoordSum = d.CoordSum.Add(vec)
	d.Touched.Extend(pt)
}

func (a *Accumulator) delta(scalar uint64) *ScalarDelta {
	d, found := a.deltas[scalar]
	if !found {
		d = new(ScalarDelta)
		a.deltas[scalar] = d
	}
	return d
}

// TouchedExtent returns the union of every scalar's touched extent, the
// region a renderer cache must invalidate for this operation.  Valid until
// Commit or Cancel clears the accumulator.
func (a *Accumulator) TouchedExtent() voxedit.Extents3d {
	var ext voxedit.Extents3d
	for _, d := range a.deltas {
		ext.ExtendExtents(d.Touched)
	}
	return ext
}

// Commit merges every nonzero delta into the table and returns the
// accumulator to idle.  Scalars without a table entry are a caller bug;
// they are logged and skipped rather than corrupting neighbors.
func (a *Accumulator) Commit(t *Table) {
	if !a.recording {
		voxedit.Criticalf("accumulator commit without start\n")
		return
	}
	for scalar, delta := range a.deltas {
		idx, found := t.IndexOfScalar(scalar)
		if !found {
			voxedit.Criticalf("accumulated delta for scalar %d with no table entry; dropped\n", scalar)
			continue
		}
		t.MergeDelta(idx, *delta)
	}
	a.deltas = nil
	a.recording = false
}

// Cancel discards all accumulated deltas without merging.  The caller is
// responsible for reverting the voxel values themselves via raw writes.
func (a *Accumulator) Cancel() {
	a.deltas = nil
	a.recording = false
}
