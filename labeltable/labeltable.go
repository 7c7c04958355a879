/*
	Package labeltable maintains the authoritative per-object statistics for a
	segmentation: for every label, its raw scalar, voxel count, centroid, and
	bounding box, plus the index-aligned color table and the set of currently
	selected labels.  The table owns the dense voxel field (labelgrid.Grid) and
	is the only component that touches it.

	Statistics are updated in batches: voxel writes inside one logical
	operation are folded into an Accumulator, and the per-scalar deltas are
	merged into the table when the operation ends.  Bounding boxes only ever
	grow; removing voxels does not tighten them (rescanning a label's full
	voxel set on every erase would be far too costly), so after removals a
	bounding box may be larger than the true tight box.
*/
package labeltable

import (
	"fmt"
	"math"
	"sort"

	"github.com/janelia-flyem/voxedit/labelgrid"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// LabelIndex is the dense UI-facing identifier for an object.  Index 0 is
// always the background.  Indexes are stable for the life of a session except
// when an undo discards a newly created entry.
type LabelIndex uint32

// Background is the label index reserved for unlabeled voxels.
const Background LabelIndex = 0

// MaxLabelIndex bounds the number of objects a table can hold.
const MaxLabelIndex = math.MaxUint32 - 1

// ObjectEntry holds the aggregate statistics for one label.  While no
// operation is in flight, VoxelCount is the exact number of voxels holding
// Scalar, and Centroid is their exact mean position.  BBoxMin/BBoxMax are
// grow-only bounds and may exceed the tight box after voxel removal.  The
// background entry is tracked by count only; its centroid and bounding box
// carry no meaning.
type ObjectEntry struct {
	Scalar     uint64
	VoxelCount uint64
	Centroid   voxedit.Vector3d
	BBoxMin    voxedit.Point3d
	BBoxMax    voxedit.Point3d
}

// Table indexes every object in a label volume.  A bijection between raw
// scalars and dense label indexes is maintained at all times: exactly one
// scalar per index and vice versa.
type Table struct {
	grid    *labelgrid.Grid
	entries []ObjectEntry
	scalars map[uint64]LabelIndex // scalar -> dense index

	colors   []Color
	selected map[LabelIndex]struct{}

	// firstFree is the watermark for scalar allocation: AllocateLabel probes
	// for the smallest unused scalar at or above it.
	firstFree uint64
}

// NewTable returns a table over a fresh all-background grid: one background
// entry holding every voxel.
func NewTable(grid *labelgrid.Grid) *Table {
	t := &Table{
		grid:      grid,
		entries:   []ObjectEntry{{Scalar: labelgrid.BackgroundScalar, VoxelCount: uint64(grid.NumVoxels())}},
		scalars:   map[uint64]LabelIndex{labelgrid.BackgroundScalar: Background},
		colors:    []Color{BackgroundColor},
		selected:  make(map[LabelIndex]struct{}),
		firstFree: 1,
	}
	return t
}

// BuildFromGrid scans an imported grid once and constructs the table for it:
// per-scalar counts, centroids, and bounding boxes, with dense indexes
// assigned to the scalars in ascending order.  Colors for non-background
// entries are generated with DefaultColor.
func BuildFromGrid(grid *labelgrid.Grid) (*Table, error) {
	counts := make(map[uint64]uint64)
	sums := make(map[uint64]voxedit.Vector3d)
	boxes := make(map[uint64]*voxedit.Extents3d)

	size := grid.Size()
	var pt voxedit.Point3d
	for z := int32(0); z < size[2]; z++ {
		slice := grid.ZSlice(z)
		i := 0
		for y := int32(0); y < size[1]; y++ {
			for x := int32(0); x < size[0]; x++ {
				scalar := slice[i]
				i++
				counts[scalar]++
				if scalar == labelgrid.BackgroundScalar {
					continue
				}
				pt = voxedit.Point3d{x, y, z}
				sums[scalar] = sums[scalar].Add(pt.Vector())
				box, found := boxes[scalar]
				if !found {
					box = new(voxedit.Extents3d)
					boxes[scalar] = box
				}
				box.Extend(pt)
			}
		}
	}

	ordered := make([]uint64, 0, len(counts))
	for scalar := range counts {
		if scalar != labelgrid.BackgroundScalar {
			ordered = append(ordered, scalar)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	if len(ordered) > MaxLabelIndex {
		return nil, fmt.Errorf("imported grid has %d distinct scalars, exceeding table capacity", len(ordered))
	}

	t := NewTable(grid)
	t.entries[Background].VoxelCount = counts[labelgrid.BackgroundScalar]
	for _, scalar := range ordered {
		idx := LabelIndex(len(t.entries))
		box := boxes[scalar]
		t.entries = append(t.entries, ObjectEntry{
			Scalar:     scalar,
			VoxelCount: counts[scalar],
			Centroid:   sums[scalar].DivideScalar(float64(counts[scalar])),
			BBoxMin:    box.MinPoint,
			BBoxMax:    box.MaxPoint,
		})
		t.scalars[scalar] = idx
		t.colors = append(t.colors, DefaultColor(idx))
		if scalar >= t.firstFree {
			t.firstFree = scalar + 1
		}
	}
	return t, nil
}

// Restore reconstitutes a table from persisted state, with entries in dense
// index order and selected labels by index.  The entry at index 0 must be
// the background.  Counts and statistics are taken on faith; the caller is
// expected to have verified a checksum over the persisted data.
func Restore(grid *labelgrid.Grid, entries []ObjectEntry, colors []Color, selected []LabelIndex) (*Table, error) {
	if len(entries) == 0 || entries[Background].Scalar != labelgrid.BackgroundScalar {
		return nil, fmt.Errorf("persisted table must lead with the background entry")
	}
	if len(colors) != len(entries) {
		return nil, fmt.Errorf("persisted table has %d entries but %d colors", len(entries), len(colors))
	}
	t := &Table{
		grid:      grid,
		entries:   entries,
		scalars:   make(map[uint64]LabelIndex, len(entries)),
		colors:    colors,
		selected:  make(map[LabelIndex]struct{}, len(selected)),
		firstFree: 1,
	}
	for i, entry := range entries {
		if _, dup := t.scalars[entry.Scalar]; dup {
			return nil, fmt.Errorf("persisted table repeats scalar %d", entry.Scalar)
		}
		t.scalars[entry.Scalar] = LabelIndex(i)
		if entry.Scalar >= t.firstFree {
			t.firstFree = entry.Scalar + 1
		}
	}
	for _, idx := range selected {
		if int(idx) >= len(entries) {
			return nil, fmt.Errorf("persisted selection names label index %d beyond table", idx)
		}
		t.selected[idx] = struct{}{}
	}
	return t, nil
}

// GridSize returns the dimensions of the owned voxel field.
func (t *Table) GridSize() voxedit.Point3d {
	return t.grid.Size()
}

// VoxelScalar returns the scalar at the given in-range point.
func (t *Table) VoxelScalar(pt voxedit.Point3d) uint64 {
	return t.grid.Get(pt)
}

// SetVoxel writes a scalar and returns the previous value.  Callers drive
// accumulator and undo bookkeeping from the returned old value; the table
// statistics themselves are only adjusted later via MergeDelta.
func (t *Table) SetVoxel(pt voxedit.Point3d, scalar uint64) (old uint64) {
	return t.grid.Set(pt, scalar)
}

// SetVoxelRaw writes a scalar with no bookkeeping, the path used by undo and
// redo replay where statistics are adjusted separately.
func (t *Table) SetVoxelRaw(pt voxedit.Point3d, scalar uint64) {
	t.grid.SetRaw(pt, scalar)
}

// ZSlice exposes one z plane of the owned grid for persistence and slice
// extraction.  See labelgrid.Grid.ZSlice for the aliasing caveat.
func (t *Table) ZSlice(z int32) []uint64 {
	return t.grid.ZSlice(z)
}

// NumLabels returns the number of object entries including background.
func (t *Table) NumLabels() int {
	return len(t.entries)
}

// Entry returns a copy of the object entry at the given index.
func (t *Table) Entry(idx LabelIndex) (ObjectEntry, bool) {
	if int(idx) >= len(t.entries) {
		return ObjectEntry{}, false
	}
	return t.entries[idx], true
}

// IndexOfScalar returns the dense index for a raw scalar.
func (t *Table) IndexOfScalar(scalar uint64) (LabelIndex, bool) {
	idx, found := t.scalars[scalar]
	return idx, found
}

// AllocateLabel finds the smallest unused scalar at or above the first-free
// watermark by linear probing against all existing scalars, creates a
// zero-initialized entry for it at the next dense index, and appends the
// given color to the color table.  Label counts are small enough that linear
// probing beats maintaining a free bit-set.
//
// Allocation is the one table mutation that can fail: exhausting the index
// space prevents the caller's operation from proceeding.
func (t *Table) AllocateLabel(color Color) (LabelIndex, error) {
	if len(t.entries) > MaxLabelIndex {
		return 0, fmt.Errorf("label table full: %d entries", len(t.entries))
	}
	scalar := t.firstFree
	if scalar == 0 {
		scalar = 1 // background scalar is never allocated
	}
	for {
		if _, used := t.scalars[scalar]; !used {
			break
		}
		if scalar == math.MaxUint64 {
			return 0, fmt.Errorf("no unused scalar at or above watermark %d", t.firstFree)
		}
		scalar++
	}
	idx := LabelIndex(len(t.entries))
	t.entries = append(t.entries, ObjectEntry{Scalar: scalar})
	t.scalars[scalar] = idx
	t.colors = append(t.colors, color)
	t.firstFree = scalar + 1
	return idx, nil
}

// EnsureLabel returns the entry for a specific scalar, creating one with the
// given color if the scalar is new.  This is the path for painting with a
// caller-chosen scalar, e.g. matching labels across imported volumes; the
// allocation watermark is not advanced, so AllocateLabel keeps probing from
// its own low-water mark.
func (t *Table) EnsureLabel(scalar uint64, color Color) (idx LabelIndex, created bool, err error) {
	if idx, found := t.scalars[scalar]; found {
		return idx, false, nil
	}
	if scalar == labelgrid.BackgroundScalar {
		return Background, false, nil
	}
	if len(t.entries) > MaxLabelIndex {
		return 0, false, fmt.Errorf("label table full: %d entries", len(t.entries))
	}
	idx = LabelIndex(len(t.entries))
	t.entries = append(t.entries, ObjectEntry{Scalar: scalar})
	t.scalars[scalar] = idx
	t.colors = append(t.colors, color)
	return idx, true, nil
}

// RemoveEntry discards the object entry at the given index.  Only the most
// recently created entry can be removed; this is the undo path for discarding
// a "newly created" label, and actions are unwound in LIFO order so the entry
// to discard is always at the table's tail.
func (t *Table) RemoveEntry(idx LabelIndex) error {
	if int(idx) != len(t.entries)-1 {
		return fmt.Errorf("can't remove label index %d: not the last entry (%d entries)", idx, len(t.entries))
	}
	if idx == Background {
		return fmt.Errorf("can't remove the background entry")
	}
	delete(t.scalars, t.entries[idx].Scalar)
	t.entries = t.entries[:idx]
	// Undo swaps in the shorter pre-action color table before removing the
	// created entry, so its color slot may already be gone.
	if int(idx) < len(t.colors) {
		t.colors = t.colors[:idx]
	}
	delete(t.selected, idx)
	return nil
}

// ReinsertEntry restores an entry removed by RemoveEntry, the redo path for a
// label creation.  The entry must land back at its original index, i.e., the
// current table tail.  Its color is restored by the color table swap that
// follows replay; a placeholder is appended here to keep the tables aligned.
func (t *Table) ReinsertEntry(idx LabelIndex, entry ObjectEntry) error {
	if int(idx) != len(t.entries) {
		return fmt.Errorf("can't reinsert label index %d at table with %d entries", idx, len(t.entries))
	}
	if _, used := t.scalars[entry.Scalar]; used {
		return fmt.Errorf("can't reinsert label index %d: scalar %d already present", idx, entry.Scalar)
	}
	t.entries = append(t.entries, entry)
	t.scalars[entry.Scalar] = idx
	t.colors = append(t.colors, Color{})
	return nil
}

// MergeDelta folds one scalar's accumulated delta into its entry.  Called by
// the Accumulator when an operation commits and by undo/redo replay.
//
// A delta with zero net voxels performs no merge at all, even if the scalar
// was touched during the operation: the centroid adjustment would divide by
// the zero count, and the grow-only bounding box rule only applies on net
// growth.  The centroid therefore misses pure voxel swaps, another accepted
// imprecision alongside the non-shrinking bounds.
func (t *Table) MergeDelta(idx LabelIndex, delta ScalarDelta) {
	if int(idx) >= len(t.entries) {
		voxedit.Criticalf("MergeDelta on missing label index %d (table has %d entries)\n", idx, len(t.entries))
		return
	}
	if delta.NumVoxels == 0 {
		return
	}
	entry := &t.entries[idx]
	newCount := int64(entry.VoxelCount) + delta.NumVoxels
	if newCount < 0 {
		voxedit.Criticalf("MergeDelta underflow for label index %d: count %d with delta %d\n",
			idx, entry.VoxelCount, delta.NumVoxels)
		newCount = 0
	}

	if idx == Background {
		// Background is tracked by count only.
		entry.VoxelCount = uint64(newCount)
		return
	}

	switch {
	case newCount == 0:
		entry.Centroid = voxedit.Vector3d{}
	case entry.VoxelCount == 0:
		entry.Centroid = delta.CoordSum.DivideScalar(float64(delta.NumVoxels))
		entry.BBoxMin = delta.Touched.MinPoint
		entry.BBoxMax = delta.Touched.MaxPoint
	default:
		c := float64(entry.VoxelCount)
		d := float64(delta.NumVoxels)
		total := c + d
		deltaCentroid := delta.CoordSum.DivideScalar(d)
		entry.Centroid = entry.Centroid.MultScalar(c / total).Add(deltaCentroid.MultScalar(d / total))
		if delta.NumVoxels > 0 {
			entry.BBoxMin.SetMinimum(delta.Touched.MinPoint)
			entry.BBoxMax.SetMaximum(delta.Touched.MaxPoint)
		}
	}
	entry.VoxelCount = uint64(newCount)
}
