package session

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/voxedit/undo"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// Config collects session settings, usually parsed from a TOML file:
//
//	[editor]
//	undo_budget_mb = 64
//	slice_cache_mb = 32
//
//	[logging]
//	logfile = "voxedit.log"
//	max_log_size = 500 # MB
//	max_log_age = 30   # days
//
//	[journal]
//	directory = "journals"
//
//	[autosave]
//	path = "autosave-db"
//	keep = 5
type Config struct {
	Editor   EditorConfig
	Logging  voxedit.LogConfig
	Journal  JournalConfig
	Autosave AutosaveConfig
}

// EditorConfig bounds the in-memory costs of editing.
type EditorConfig struct {
	// UndoBudgetMB caps undo/redo history; zero or negative uses the
	// package default.
	UndoBudgetMB int `toml:"undo_budget_mb"`

	// SliceCacheMB sizes the extracted-slice cache; zero disables it.
	SliceCacheMB int `toml:"slice_cache_mb"`
}

// JournalConfig locates the append-only mutation journal.  An empty
// directory disables journaling.
type JournalConfig struct {
	Directory string `toml:"directory"`
}

// AutosaveConfig locates the store for periodic compressed saves.  An empty
// path disables autosave.
type AutosaveConfig struct {
	Path string `toml:"path"`

	// Keep bounds retained autosaves; older ones are pruned.  Zero or
	// negative keeps DefaultAutosaveKeep.
	Keep int `toml:"keep"`
}

func (c *Config) undoBudget() uint64 {
	if c == nil || c.Editor.UndoBudgetMB <= 0 {
		return undo.DefaultBudget
	}
	return uint64(c.Editor.UndoBudgetMB) << 20
}

// LoadConfig reads session configuration from a TOML file.  Relative paths
// in the config are interpreted relative to the file's own directory.  The
// logging section takes effect immediately.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	c.Logging.SetLogger()
	return &c, nil
}

// Relative paths in the TOML are taken relative to the config file's own
// directory, converted in-place here.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return fmt.Errorf("can't resolve config directory: %v", err)
	}
	if c.Logging.Logfile != "" && !filepath.IsAbs(c.Logging.Logfile) {
		c.Logging.Logfile = filepath.Join(configDir, c.Logging.Logfile)
	}
	if c.Journal.Directory != "" && !filepath.IsAbs(c.Journal.Directory) {
		c.Journal.Directory = filepath.Join(configDir, c.Journal.Directory)
	}
	if c.Autosave.Path != "" && !filepath.IsAbs(c.Autosave.Path) {
		c.Autosave.Path = filepath.Join(configDir, c.Autosave.Path)
	}
	return nil
}
