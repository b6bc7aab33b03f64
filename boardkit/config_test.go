package boardkit

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
document_path: /tmp/board.md
backup_dsn: /tmp/backups.db
watch_document: true
event_history: 200
default_resolution: backup_and_reload
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DocumentPath != "/tmp/board.md" {
		t.Errorf("unexpected document path %q", cfg.DocumentPath)
	}
	if cfg.EventHistory != 200 {
		t.Errorf("expected event_history 200, got %d", cfg.EventHistory)
	}
	if cfg.DefaultResolution != "backup_and_reload" {
		t.Errorf("unexpected default resolution %q", cfg.DefaultResolution)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level %q", cfg.Logging.Level)
	}
	// CommandHistory was omitted and must be defaulted
	if cfg.CommandHistory != 50 {
		t.Errorf("expected defaulted command_history 50, got %d", cfg.CommandHistory)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"document_path": "/tmp/board.md"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DocumentPath != "/tmp/board.md" {
		t.Errorf("unexpected document path %q", cfg.DocumentPath)
	}
	if cfg.DefaultResolution != "save" {
		t.Errorf("expected defaulted resolution save, got %q", cfg.DefaultResolution)
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeConfigFile(t, "config.toml", `document_path = "/tmp/board.md"`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadConfig_MissingDocumentPath(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `watch_document: true`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing document_path")
	}
}

func TestConfig_Validate_UnknownResolution(t *testing.T) {
	cfg := DefaultConfig("/tmp/board.md")
	cfg.DefaultResolution = "merge"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown resolution")
	}
}
