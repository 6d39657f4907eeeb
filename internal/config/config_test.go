package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"murmur/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Engine.Language != "auto" {
		t.Fatalf("expected default language auto, got %q", cfg.Engine.Language)
	}
	if cfg.Engine.Threads != runtime.NumCPU() {
		t.Fatalf("expected threads defaulted to core count, got %d", cfg.Engine.Threads)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
resource_dir = "` + filepath.Join(dir, "engines") + `"

[engine]
model_path = "` + filepath.Join(dir, "model.bin") + `"
language = " EN "
device_preference = ["NVIDIA", " cpu "]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Engine.Language != "en" {
		t.Fatalf("expected normalized language, got %q", cfg.Engine.Language)
	}
	if got := cfg.Engine.DevicePreference; len(got) != 2 || got[0] != "nvidia" || got[1] != "cpu" {
		t.Fatalf("expected normalized preference, got %v", got)
	}
}

func TestValidateRejectsUnknownDeviceTag(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.DevicePreference = []string{"amd"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown device tag") {
		t.Fatalf("expected unknown tag error, got %v", err)
	}
}

func TestValidateRejectsDuplicateDeviceTag(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.DevicePreference = []string{"cpu", "cpu"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate tag error")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected log format error")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
