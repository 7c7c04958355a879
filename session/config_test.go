package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/voxedit/undo"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "voxedit.toml")
	content := `
[editor]
undo_budget_mb = 16
slice_cache_mb = 8

[journal]
directory = "journals"

[autosave]
path = "/var/tmp/voxedit-autosave"
keep = 3
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatalf("Error writing config: %v\n", err)
	}

	cfg, err := LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("Error loading config: %v\n", err)
	}
	if cfg.Editor.UndoBudgetMB != 16 || cfg.Editor.SliceCacheMB != 8 {
		t.Errorf("Bad editor config: %+v\n", cfg.Editor)
	}
	if cfg.undoBudget() != 16<<20 {
		t.Errorf("Expected 16 MiB undo budget, got %d\n", cfg.undoBudget())
	}
	if cfg.Autosave.Keep != 3 {
		t.Errorf("Bad autosave keep: %d\n", cfg.Autosave.Keep)
	}

	// Relative paths resolve against the config file's directory; absolute
	// paths pass through.
	if cfg.Journal.Directory != filepath.Join(dir, "journals") {
		t.Errorf("Bad journal directory: %s\n", cfg.Journal.Directory)
	}
	if cfg.Autosave.Path != "/var/tmp/voxedit-autosave" {
		t.Errorf("Absolute autosave path rewritten: %s\n", cfg.Autosave.Path)
	}
}

func TestConfigDefaults(t *testing.T) {
	var nilCfg *Config
	if nilCfg.undoBudget() != undo.DefaultBudget {
		t.Errorf("Nil config should use the default undo budget\n")
	}
	zero := &Config{}
	if zero.undoBudget() != undo.DefaultBudget {
		t.Errorf("Zero config should use the default undo budget\n")
	}

	if _, err := LoadConfig(""); err == nil {
		t.Errorf("Expected error loading empty config path\n")
	}
	if _, err := LoadConfig("/nonexistent/voxedit.toml"); err == nil {
		t.Errorf("Expected error loading missing config file\n")
	}
}
