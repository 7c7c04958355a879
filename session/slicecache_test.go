package session

import (
	"reflect"
	"testing"

	"github.com/janelia-flyem/voxedit/voxedit"
)

func newCachedSession(t *testing.T) *Session {
	cfg := &Config{}
	cfg.Editor.SliceCacheMB = 1
	s, err := New(voxedit.Point3d{4, 3, 2}, cfg)
	if err != nil {
		t.Fatalf("Error creating session: %v\n", err)
	}
	return s
}

func TestSliceExtraction(t *testing.T) {
	s := newCachedSession(t)
	paintVoxels(t, s, "paint corners", 5,
		voxedit.Point3d{0, 0, 1}, voxedit.Point3d{3, 2, 1}, voxedit.Point3d{2, 1, 0})

	xy := s.SliceXY(1)
	if len(xy) != 12 {
		t.Fatalf("Expected 12 voxels in xy slice, got %d\n", len(xy))
	}
	if xy[0] != 5 || xy[11] != 5 || xy[5] != 0 {
		t.Errorf("Bad xy slice contents: %v\n", xy)
	}

	// x then z ordering: (2,1,0) sits at x=2 of the z=0 row.
	xz := s.SliceXZ(1)
	if len(xz) != 8 {
		t.Fatalf("Expected 8 voxels in xz slice, got %d\n", len(xz))
	}
	if xz[2] != 5 {
		t.Errorf("Bad xz slice contents: %v\n", xz)
	}

	// y then z ordering: (3,2,1) sits at y=2 of the z=1 row.
	yz := s.SliceYZ(3)
	if len(yz) != 6 {
		t.Fatalf("Expected 6 voxels in yz slice, got %d\n", len(yz))
	}
	if yz[3+2] != 5 {
		t.Errorf("Bad yz slice contents: %v\n", yz)
	}
}

func TestSliceCacheHits(t *testing.T) {
	s := newCachedSession(t)
	paintVoxels(t, s, "paint", 5, voxedit.Point3d{1, 1, 1})

	first := s.SliceXY(1)
	second := s.SliceXY(1)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Cached slice differs from extracted slice\n")
	}
	stats := s.GetCacheStats()
	if stats.Attempts != 2 || stats.Hits != 1 {
		t.Errorf("Expected 2 attempts with 1 hit, got %+v\n", stats)
	}

	// A committed operation through the plane invalidates it.
	paintVoxels(t, s, "repaint", 5, voxedit.Point3d{2, 1, 1})
	third := s.SliceXY(1)
	if third[1*4+2] != 5 {
		t.Errorf("Slice served stale after invalidation: %v\n", third)
	}

	// Planes the operation missed stay cached.
	s.SliceXY(0)
	before := s.GetCacheStats()
	s.SliceXY(0)
	after := s.GetCacheStats()
	if after.Hits != before.Hits+1 {
		t.Errorf("Untouched plane should stay cached: %+v then %+v\n", before, after)
	}
}

func TestSliceUncached(t *testing.T) {
	s := newEditSession(t)
	paintVoxels(t, s, "paint", 5, voxedit.Point3d{1, 1, 1})

	xy := s.SliceXY(1)
	if xy[1*10+1] != 5 {
		t.Errorf("Bad slice without cache: %v\n", xy)
	}
	if stats := s.GetCacheStats(); stats != (CacheStats{}) {
		t.Errorf("Disabled cache should report zero stats, got %+v\n", stats)
	}
}

func TestSliceCacheClearedByUndo(t *testing.T) {
	s := newCachedSession(t)
	paintVoxels(t, s, "paint", 5, voxedit.Point3d{1, 1, 1})
	if got := s.SliceXY(1); got[1*4+1] != 5 {
		t.Fatalf("Bad slice before undo: %v\n", got)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("Error on Undo: %v\n", err)
	}
	if got := s.SliceXY(1); got[1*4+1] != 0 {
		t.Errorf("Slice served stale after undo: %v\n", got)
	}
}
