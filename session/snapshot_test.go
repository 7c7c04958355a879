package session

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/janelia-flyem/voxedit/labeltable"
	"github.com/janelia-flyem/voxedit/voxedit"
)

func TestSnapshotRoundTrip(t *testing.T) {
	// Volume deep enough for multiple slabs, with a partial final one.
	s, err := New(voxedit.Point3d{6, 5, 40}, nil)
	if err != nil {
		t.Fatalf("Error creating session: %v\n", err)
	}
	paintVoxels(t, s, "paint shallow", 5,
		voxedit.Point3d{1, 1, 0}, voxedit.Point3d{2, 3, 1})
	paintVoxels(t, s, "paint middle", 9, voxedit.Point3d{2, 3, 17})
	paintVoxels(t, s, "paint deep", 9, voxedit.Point3d{5, 4, 39})
	idx9, _ := s.IndexOfScalar(9)
	s.Highlight(idx9)

	probe := []voxedit.Point3d{
		{1, 1, 0}, {2, 3, 1}, {2, 3, 17}, {5, 4, 39}, {0, 0, 20}, {3, 3, 38},
	}
	want := captureEditor(s, probe)

	var buf bytes.Buffer
	if err := s.WriteSnapshot(&buf); err != nil {
		t.Fatalf("Error on WriteSnapshot: %v\n", err)
	}
	restored, err := ReadSnapshot(&buf, nil)
	if err != nil {
		t.Fatalf("Error on ReadSnapshot: %v\n", err)
	}

	if restored.ID() != s.ID() {
		t.Errorf("Restored session id %s, want %s\n", restored.ID(), s.ID())
	}
	if restored.GridSize() != s.GridSize() {
		t.Errorf("Restored size %s, want %s\n", restored.GridSize(), s.GridSize())
	}
	checkEditor(t, "snapshot round trip", captureEditor(restored, probe), want)

	// Bounding boxes persist exactly.
	wantEntry, _ := s.Entry(idx9)
	gotEntry, _ := restored.Entry(idx9)
	if gotEntry.BBoxMin != wantEntry.BBoxMin || gotEntry.BBoxMax != wantEntry.BBoxMax {
		t.Errorf("Restored bounding box %s to %s, want %s to %s\n",
			gotEntry.BBoxMin, gotEntry.BBoxMax, wantEntry.BBoxMin, wantEntry.BBoxMax)
	}

	// Undo history is session-lifetime state and does not persist.
	if restored.CanUndo() || restored.CanRedo() {
		t.Errorf("Restored session should start with empty history\n")
	}

	// The allocation watermark clears every persisted scalar.
	if err := restored.OperationStart("allocate after load"); err != nil {
		t.Fatalf("Error starting operation: %v\n", err)
	}
	idx, err := restored.AllocateLabel(labeltable.DefaultColor(3))
	if err != nil {
		t.Fatalf("Error on AllocateLabel: %v\n", err)
	}
	entry, _ := restored.Entry(idx)
	if entry.Scalar != 10 {
		t.Errorf("Expected allocation of scalar 10 after load, got %d\n", entry.Scalar)
	}
	restored.SetVoxelScalar(voxedit.Point3d{0, 0, 0}, entry.Scalar)
	if err := restored.OperationEnd(); err != nil {
		t.Fatalf("Error ending operation: %v\n", err)
	}
}

func TestSnapshotFile(t *testing.T) {
	s, err := New(voxedit.Point3d{8, 8, 8}, nil)
	if err != nil {
		t.Fatalf("Error creating session: %v\n", err)
	}
	paintVoxels(t, s, "paint", 5, voxedit.Point3d{3, 3, 3})

	path := filepath.Join(t.TempDir(), "session.vxs")
	if err := s.SaveSnapshotFile(path); err != nil {
		t.Fatalf("Error on SaveSnapshotFile: %v\n", err)
	}

	id, saved, size, numLabels, err := ReadSnapshotHeader(path)
	if err != nil {
		t.Fatalf("Error on ReadSnapshotHeader: %v\n", err)
	}
	if id != s.ID() {
		t.Errorf("Header session id %s, want %s\n", id, s.ID())
	}
	if size != (voxedit.Point3d{8, 8, 8}) {
		t.Errorf("Header size %s\n", size)
	}
	if numLabels != 2 {
		t.Errorf("Header labels %d, want 2\n", numLabels)
	}
	if time.Since(saved) > time.Minute || time.Since(saved) < 0 {
		t.Errorf("Header save time looks wrong: %s\n", saved)
	}

	restored, err := LoadSnapshotFile(path, nil)
	if err != nil {
		t.Fatalf("Error on LoadSnapshotFile: %v\n", err)
	}
	if restored.VoxelScalar(voxedit.Point3d{3, 3, 3}) != 5 {
		t.Errorf("Loaded volume missing painted voxel\n")
	}
}

func TestSnapshotVersionGate(t *testing.T) {
	header := snapshotHeader{
		Format:    "2.0.0",
		SessionID: "stale",
		Size:      voxedit.Point3d{2, 2, 2},
		SlabZSize: slabZSize,
		NumSlabs:  1,
		Entries:   []labeltable.ObjectEntry{{Scalar: 0, VoxelCount: 8}},
		Colors:    []labeltable.Color{labeltable.BackgroundColor},
	}
	headerBytes, err := voxedit.Serialize(header, voxedit.Snappy, voxedit.CRC32)
	if err != nil {
		t.Fatalf("Error serializing header: %v\n", err)
	}
	var buf bytes.Buffer
	if err := writeBlock(&buf, headerBytes); err != nil {
		t.Fatalf("Error writing header block: %v\n", err)
	}
	if _, err := ReadSnapshot(&buf, nil); err == nil {
		t.Errorf("Expected error loading snapshot with incompatible major version\n")
	}
}
