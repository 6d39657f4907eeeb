// Package config loads, normalizes, and validates the TOML configuration
// for murmur. Path fields are tilde-expanded and made absolute during
// normalization so downstream packages never deal with relative paths.
package config
