package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/painterlink-test")

	if cfg.ListenHost != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %q", cfg.ListenHost)
	}
	if cfg.ListenPort != 0 {
		t.Errorf("expected default port 0 (ephemeral), got %d", cfg.ListenPort)
	}
	if cfg.HistorySize != 100 {
		t.Errorf("expected default history size 100, got %d", cfg.HistorySize)
	}
	if cfg.Companion.RespawnDelay != time.Second {
		t.Errorf("expected default respawn delay 1s, got %s", cfg.Companion.RespawnDelay)
	}
	if cfg.JournalPath != filepath.Join("/tmp/painterlink-test", JournalName) {
		t.Errorf("unexpected journal path: %q", cfg.JournalPath)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig without a file should fall back to defaults: %v", err)
	}
	if cfg.ListenHost != "127.0.0.1" {
		t.Errorf("expected default host, got %q", cfg.ListenHost)
	}
}

func TestLoadConfig_FromHCL(t *testing.T) {
	dir := t.TempDir()
	content := `
listen_host = "0.0.0.0"
listen_port = 9000
debug       = true

companion {
  python        = "/usr/bin/python3"
  startup       = "/opt/engine/startup.py"
  args          = ["--quiet"]
  respawn_delay = "250ms"
  environment = {
    PIPELINE_ROOT = "/mnt/pipeline"
  }
}
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ListenHost != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %q", cfg.ListenHost)
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.ListenPort)
	}
	if !cfg.Debug {
		t.Error("expected debug enabled")
	}
	if cfg.Companion.Python != "/usr/bin/python3" {
		t.Errorf("unexpected python: %q", cfg.Companion.Python)
	}
	if cfg.Companion.Startup != "/opt/engine/startup.py" {
		t.Errorf("unexpected startup: %q", cfg.Companion.Startup)
	}
	if len(cfg.Companion.Args) != 1 || cfg.Companion.Args[0] != "--quiet" {
		t.Errorf("unexpected args: %v", cfg.Companion.Args)
	}
	if cfg.Companion.RespawnDelay != 250*time.Millisecond {
		t.Errorf("expected respawn delay 250ms, got %s", cfg.Companion.RespawnDelay)
	}
	if cfg.Companion.Environment["PIPELINE_ROOT"] != "/mnt/pipeline" {
		t.Errorf("unexpected environment: %v", cfg.Companion.Environment)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
listen_port = 9000

companion {
  python  = "/usr/bin/python3"
  startup = "/opt/engine/startup.py"
}
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("PAINTERLINK_PORT", "12345")
	t.Setenv("PAINTERLINK_DEBUG", "true")
	t.Setenv("PAINTERLINK_ENGINE_PYTHON", "/usr/local/bin/python3.11")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ListenPort != 12345 {
		t.Errorf("expected env port override 12345, got %d", cfg.ListenPort)
	}
	if !cfg.Debug {
		t.Error("expected env debug override")
	}
	if cfg.Companion.Python != "/usr/local/bin/python3.11" {
		t.Errorf("expected env python override, got %q", cfg.Companion.Python)
	}
	// Values without an env override keep their file values
	if cfg.Companion.Startup != "/opt/engine/startup.py" {
		t.Errorf("expected startup preserved, got %q", cfg.Companion.Startup)
	}
}

func TestLoadConfig_InvalidRespawnDelay(t *testing.T) {
	dir := t.TempDir()
	content := `
companion {
  respawn_delay = "soon"
}
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfig(dir); err == nil {
		t.Error("expected an error for an unparseable respawn_delay")
	}
}

func TestConfigFile(t *testing.T) {
	cfg := DefaultConfig("/tmp/painterlink-test")
	want := filepath.Join("/tmp/painterlink-test", ConfigFileName)
	if cfg.ConfigFile() != want {
		t.Errorf("expected %q, got %q", want, cfg.ConfigFile())
	}
}
