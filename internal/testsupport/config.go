// Package testsupport provides per-test configuration and fixture helpers.
package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"murmur/internal/config"
	"murmur/internal/resolve"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ResourceDir = filepath.Join(base, "resources")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DiagnosticsDB = ""
	cfgVal.Engine.ModelPath = filepath.Join(base, "resources", "model.bin")
	cfgVal.Engine.Threads = 1
	cfgVal.Daemon.APIBind = "127.0.0.1:0"
	cfgVal.Daemon.WatchResources = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDiagnosticsDB enables the diagnostics store under the test base dir.
func WithDiagnosticsDB() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.DiagnosticsDB = filepath.Join(b.baseDir, "diag", "murmur.db")
	}
}

// WithDevicePreference sets the device preference order.
func WithDevicePreference(tags ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.DevicePreference = tags
	}
}

// WithWatchResources turns the resource watcher on.
func WithWatchResources() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.WatchResources = true
	}
}

// WithEngineBinaries writes placeholder engine libraries for every candidate
// of the current platform so resolution succeeds against the stub backend.
func WithEngineBinaries() ConfigOption {
	return func(b *configBuilder) {
		WriteEngineBinaries(b.t, b.cfg.Paths.ResourceDir)
		if err := os.WriteFile(b.cfg.Engine.ModelPath, []byte("model"), 0o644); err != nil {
			b.t.Fatalf("write model placeholder: %v", err)
		}
	}
}

// WriteEngineBinaries creates placeholder library files for every candidate
// of the current platform inside dir.
func WriteEngineBinaries(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir resource dir: %v", err)
	}
	for _, cand := range resolve.Candidates(runtime.GOOS, runtime.GOARCH) {
		path := filepath.Join(dir, cand.Library)
		if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
			t.Fatalf("write library %s: %v", cand.Library, err)
		}
	}
}
