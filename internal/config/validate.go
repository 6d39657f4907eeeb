package config

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceTags lists the vendor tags accepted in engine.device_preference.
var DeviceTags = []string{"nvidia", "intel", "apple", "cpu"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.ModelPath) == "" {
		return errors.New("engine.model_path must be set")
	}
	seen := make(map[string]struct{}, len(c.Engine.DevicePreference))
	for _, tag := range c.Engine.DevicePreference {
		if !knownDeviceTag(tag) {
			return fmt.Errorf("engine.device_preference: unknown device tag %q (valid: %s)", tag, strings.Join(DeviceTags, ", "))
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("engine.device_preference: duplicate device tag %q", tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console, json, or auto (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func knownDeviceTag(tag string) bool {
	for _, known := range DeviceTags {
		if tag == known {
			return true
		}
	}
	return false
}
