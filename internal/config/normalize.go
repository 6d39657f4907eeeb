package config

import (
	"fmt"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ResourceDir) == "" {
		c.Paths.ResourceDir = defaultResourceDir
	}
	if c.Paths.ResourceDir, err = expandPath(c.Paths.ResourceDir); err != nil {
		return fmt.Errorf("paths.resource_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if trimmed := strings.TrimSpace(c.Paths.DiagnosticsDB); trimmed != "" {
		if c.Paths.DiagnosticsDB, err = expandPath(trimmed); err != nil {
			return fmt.Errorf("paths.diagnostics_db: %w", err)
		}
	} else {
		c.Paths.DiagnosticsDB = ""
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Language = strings.ToLower(strings.TrimSpace(c.Engine.Language))
	if c.Engine.Language == "" {
		c.Engine.Language = defaultLanguage
	}
	if c.Engine.Threads <= 0 {
		c.Engine.Threads = runtime.NumCPU()
	}
	if expanded, err := expandPath(strings.TrimSpace(c.Engine.ModelPath)); err == nil {
		c.Engine.ModelPath = expanded
	}
	prefs := make([]string, 0, len(c.Engine.DevicePreference))
	for _, tag := range c.Engine.DevicePreference {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			prefs = append(prefs, tag)
		}
	}
	c.Engine.DevicePreference = prefs
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if c.Daemon.APIBind == "" {
		c.Daemon.APIBind = defaultAPIBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
