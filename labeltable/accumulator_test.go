package labeltable

import (
	"testing"

	"github.com/janelia-flyem/voxedit/voxedit"
)

func TestAccumulatorCommit(t *testing.T) {
	grid := newTestGrid(t, voxedit.Point3d{10, 10, 10})
	table := NewTable(grid)
	idx, _, err := table.EnsureLabel(5, DefaultColor(1))
	if err != nil {
		t.Fatalf("Error on EnsureLabel: %v\n", err)
	}

	var acc Accumulator
	if acc.Recording() {
		t.Errorf("Zero-value accumulator should be idle\n")
	}
	acc.Start()
	if !acc.Recording() {
		t.Errorf("Accumulator should record after Start\n")
	}
	for _, pt := range []voxedit.Point3d{{1, 1, 1}, {2, 1, 1}, {3, 1, 1}} {
		old := table.SetVoxel(pt, 5)
		acc.Note(pt, old, 5)
	}

	touched := acc.TouchedExtent()
	if touched.Empty() {
		t.Fatalf("Expected non-empty touched extent\n")
	}
	if touched.MinPoint != (voxedit.Point3d{1, 1, 1}) || touched.MaxPoint != (voxedit.Point3d{3, 1, 1}) {
		t.Errorf("Bad touched extent: %s to %s\n", touched.MinPoint, touched.MaxPoint)
	}

	acc.Commit(table)
	if acc.Recording() {
		t.Errorf("Accumulator should be idle after Commit\n")
	}
	entry, _ := table.Entry(idx)
	if entry.VoxelCount != 3 {
		t.Errorf("Expected count 3 after commit, got %d\n", entry.VoxelCount)
	}
	if !centroidsClose(entry.Centroid, voxedit.Vector3d{2, 1, 1}) {
		t.Errorf("Expected centroid (2,1,1), got %s\n", entry.Centroid)
	}
	if entry.BBoxMin != (voxedit.Point3d{1, 1, 1}) || entry.BBoxMax != (voxedit.Point3d{3, 1, 1}) {
		t.Errorf("Bad bounding box: %s to %s\n", entry.BBoxMin, entry.BBoxMax)
	}
	bg, _ := table.Entry(Background)
	if bg.VoxelCount != 997 {
		t.Errorf("Expected background count 997, got %d\n", bg.VoxelCount)
	}
}

func TestAccumulatorNoOpNotes(t *testing.T) {
	grid := newTestGrid(t, voxedit.Point3d{10, 10, 10})
	table := NewTable(grid)
	if _, _, err := table.EnsureLabel(5, DefaultColor(1)); err != nil {
		t.Fatalf("Error on EnsureLabel: %v\n", err)
	}

	var acc Accumulator
	// Notes before Start are dropped.
	acc.Note(voxedit.Point3d{1, 1, 1}, 0, 5)

	acc.Start()
	// Identity transitions are dropped too.
	acc.Note(voxedit.Point3d{2, 2, 2}, 5, 5)
	touched := acc.TouchedExtent()
	if !touched.Empty() {
		t.Errorf("No-op notes should leave the touched extent empty\n")
	}
	acc.Commit(table)

	bg, _ := table.Entry(Background)
	if bg.VoxelCount != 1000 {
		t.Errorf("No-op notes changed background count to %d\n", bg.VoxelCount)
	}
}

func TestAccumulatorNetZero(t *testing.T) {
	grid := newTestGrid(t, voxedit.Point3d{10, 10, 10})
	table := NewTable(grid)
	idx, _, err := table.EnsureLabel(5, DefaultColor(1))
	if err != nil {
		t.Fatalf("Error on EnsureLabel: %v\n", err)
	}
	var acc Accumulator
	acc.Start()
	old := table.SetVoxel(voxedit.Point3d{1, 1, 1}, 5)
	acc.Note(voxedit.Point3d{1, 1, 1}, old, 5)
	acc.Commit(table)
	entry, _ := table.Entry(idx)

	// Moving one voxel of a label within one operation nets to zero for that
	// scalar, so its statistics are deliberately left alone.
	acc.Start()
	old = table.SetVoxel(voxedit.Point3d{1, 1, 1}, 0)
	acc.Note(voxedit.Point3d{1, 1, 1}, old, 0)
	old = table.SetVoxel(voxedit.Point3d{9, 9, 9}, 5)
	acc.Note(voxedit.Point3d{9, 9, 9}, old, 5)
	acc.Commit(table)

	after, _ := table.Entry(idx)
	if after != entry {
		t.Errorf("Net-zero commit changed the entry: %+v vs %+v\n", after, entry)
	}
	bg, _ := table.Entry(Background)
	if bg.VoxelCount != 999 {
		t.Errorf("Expected background count 999 after voxel move, got %d\n", bg.VoxelCount)
	}
}

func TestAccumulatorCancel(t *testing.T) {
	grid := newTestGrid(t, voxedit.Point3d{10, 10, 10})
	table := NewTable(grid)
	idx, _, err := table.EnsureLabel(5, DefaultColor(1))
	if err != nil {
		t.Fatalf("Error on EnsureLabel: %v\n", err)
	}
	var acc Accumulator
	acc.Start()
	old := table.SetVoxel(voxedit.Point3d{1, 1, 1}, 5)
	acc.Note(voxedit.Point3d{1, 1, 1}, old, 5)
	acc.Cancel()
	if acc.Recording() {
		t.Errorf("Accumulator should be idle after Cancel\n")
	}

	entry, _ := table.Entry(idx)
	if entry.VoxelCount != 0 {
		t.Errorf("Cancel must not merge deltas, label count %d\n", entry.VoxelCount)
	}
	bg, _ := table.Entry(Background)
	if bg.VoxelCount != 1000 {
		t.Errorf("Cancel must not merge deltas, background count %d\n", bg.VoxelCount)
	}
}

func TestAccumulatorUnknownScalar(t *testing.T) {
	grid := newTestGrid(t, voxedit.Point3d{10, 10, 10})
	table := NewTable(grid)

	// A delta for a scalar missing from the table is logged and dropped, and
	// must not disturb the scalars that do resolve.
	var acc Accumulator
	acc.Start()
	old := table.SetVoxel(voxedit.Point3d{1, 1, 1}, 12345)
	acc.Note(voxedit.Point3d{1, 1, 1}, old, 12345)
	acc.Commit(table)

	bg, _ := table.Entry(Background)
	if bg.VoxelCount != 999 {
		t.Errorf("Expected background count 999, got %d\n", bg.VoxelCount)
	}
	if table.NumLabels() != 1 {
		t.Errorf("Unknown scalar should not create an entry, got %d labels\n", table.NumLabels())
	}
}
