package session

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/janelia-flyem/voxedit/undo"
	"github.com/janelia-flyem/voxedit/voxedit"
)

func TestCollector(t *testing.T) {
	s := newEditSession(t)
	paintVoxels(t, s, "paint a", 1, voxedit.Point3d{1, 1, 1})
	paintVoxels(t, s, "paint b", 2, voxedit.Point3d{2, 2, 2})
	if err := s.Undo(); err != nil {
		t.Fatalf("Error on Undo: %v\n", err)
	}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(s)); err != nil {
		t.Fatalf("Error registering collector: %v\n", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Error gathering metrics: %v\n", err)
	}

	got := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != 1 || m.GetLabel()[0].GetName() != "session" ||
				m.GetLabel()[0].GetValue() != s.ID() {
				t.Errorf("Metric %s missing session label: %v\n", mf.GetName(), m.GetLabel())
			}
			if c := m.GetCounter(); c != nil {
				got[mf.GetName()] = c.GetValue()
			} else if g := m.GetGauge(); g != nil {
				got[mf.GetName()] = g.GetValue()
			}
		}
	}

	want := map[string]float64{
		"voxedit_operations_committed_total": 2,
		"voxedit_operations_cancelled_total": 0,
		"voxedit_undo_total":                 1,
		"voxedit_redo_total":                 0,
		"voxedit_undo_records":               1,
		"voxedit_redo_records":               1,
		"voxedit_undo_bytes_budget":          float64(undo.DefaultBudget),
		"voxedit_labels":                     2,
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("Metric %s = %v, want %v\n", name, got[name], value)
		}
	}
	if got["voxedit_undo_bytes_used"] <= 0 {
		t.Errorf("Expected nonzero undo usage, got %v\n", got["voxedit_undo_bytes_used"])
	}
}
