package config

import "runtime"

const (
	defaultResourceDir   = "~/.local/share/murmur/engines"
	defaultLogDir        = "~/.local/share/murmur/logs"
	defaultDiagnosticsDB = "~/.local/share/murmur/diagnostics.db"
	defaultModelPath     = "~/.local/share/murmur/models/ggml-base.bin"
	defaultLanguage      = "auto"
	defaultAPIBind       = "127.0.0.1:7519"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ResourceDir:   defaultResourceDir,
			LogDir:        defaultLogDir,
			DiagnosticsDB: defaultDiagnosticsDB,
		},
		Engine: Engine{
			ModelPath: defaultModelPath,
			Language:  defaultLanguage,
			Threads:   runtime.NumCPU(),
		},
		Daemon: Daemon{
			APIBind:        defaultAPIBind,
			WatchResources: true,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
