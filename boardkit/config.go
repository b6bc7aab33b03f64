package boardkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/go-board-kit/conflict"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// Config is the coordinator configuration, loadable from YAML or JSON.
type Config struct {
	// DocumentPath is the board document the coordinator operates on
	DocumentPath string `json:"document_path" yaml:"document_path"`

	// BackupDSN is the SQLite data source for board backups and the save
	// journal. Empty disables the backup store.
	BackupDSN string `json:"backup_dsn,omitempty" yaml:"backup_dsn,omitempty"`

	// WatchDocument enables the fsnotify external-change watcher
	WatchDocument bool `json:"watch_document,omitempty" yaml:"watch_document,omitempty"`

	// EventHistory bounds the event bus history ring buffer
	EventHistory int `json:"event_history,omitempty" yaml:"event_history,omitempty"`

	// CommandHistory bounds the command bus audit history
	CommandHistory int `json:"command_history,omitempty" yaml:"command_history,omitempty"`

	// DefaultResolution is applied when no prompt collaborator is available
	DefaultResolution string `json:"default_resolution,omitempty" yaml:"default_resolution,omitempty"`

	// Logging configures the structured logger
	Logging logging.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(documentPath string) *Config {
	return &Config{
		DocumentPath:      documentPath,
		WatchDocument:     true,
		EventHistory:      100,
		CommandHistory:    50,
		DefaultResolution: string(conflict.ResolutionSave),
		Logging:           logging.DefaultConfig,
	}
}

// LoadConfig reads a YAML or JSON config file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.EventHistory <= 0 {
		c.EventHistory = 100
	}
	if c.CommandHistory <= 0 {
		c.CommandHistory = 50
	}
	if c.DefaultResolution == "" {
		c.DefaultResolution = string(conflict.ResolutionSave)
	}
	if c.Logging.Level == "" {
		c.Logging = logging.DefaultConfig
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.DocumentPath == "" {
		return fmt.Errorf("document_path is required")
	}
	switch conflict.Resolution(c.DefaultResolution) {
	case conflict.ResolutionSave, conflict.ResolutionDiscardLocal, conflict.ResolutionBackupAndReload,
		conflict.ResolutionIgnore, conflict.ResolutionCancel:
	default:
		return fmt.Errorf("unknown default_resolution %q", c.DefaultResolution)
	}
	return nil
}
