package session

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/voxedit/voxedit"
)

func TestAutosave(t *testing.T) {
	cfg := &Config{}
	cfg.Autosave.Path = filepath.Join(t.TempDir(), "autosave-db")
	cfg.Autosave.Keep = 2
	s, err := New(voxedit.Point3d{8, 8, 8}, cfg)
	if err != nil {
		t.Fatalf("Error creating session: %v\n", err)
	}
	defer s.Close()

	paintVoxels(t, s, "paint", 5, voxedit.Point3d{1, 2, 3})
	for i := 0; i < 3; i++ {
		if err := s.Autosave(); err != nil {
			t.Fatalf("Error on autosave %d: %v\n", i, err)
		}
	}

	// Only the newest two savepoints survive pruning.
	infos, err := s.Autosaves()
	if err != nil {
		t.Fatalf("Error listing autosaves: %v\n", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 retained autosaves, got %d\n", len(infos))
	}
	for _, info := range infos {
		if !strings.HasPrefix(info.Key, s.ID()+"-") {
			t.Errorf("Autosave key %q missing session prefix\n", info.Key)
		}
	}
	if infos[0].Key >= infos[1].Key {
		t.Errorf("Autosaves should list oldest first: %q then %q\n", infos[0].Key, infos[1].Key)
	}

	// A retained savepoint reconstitutes the session.
	data, err := s.AutosaveBytes(infos[1].Key)
	if err != nil {
		t.Fatalf("Error fetching autosave: %v\n", err)
	}
	restored, err := ReadSnapshot(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Error restoring autosave: %v\n", err)
	}
	if restored.ID() != s.ID() {
		t.Errorf("Restored session id %s, want %s\n", restored.ID(), s.ID())
	}
	if restored.VoxelScalar(voxedit.Point3d{1, 2, 3}) != 5 {
		t.Errorf("Restored autosave missing painted voxel\n")
	}

	if _, err := s.AutosaveBytes("bogus-key"); err == nil {
		t.Errorf("Expected error fetching unknown autosave key\n")
	}
}

func TestAutosaveUnconfigured(t *testing.T) {
	s := newEditSession(t)
	if err := s.Autosave(); err == nil {
		t.Errorf("Expected error autosaving without a store\n")
	}
	if _, err := s.Autosaves(); err == nil {
		t.Errorf("Expected error listing autosaves without a store\n")
	}
}
