// Package logging constructs the shared slog logger and provides helper
// attribute constructors plus the standardized field names used across
// components. Console output is the default when attached to a terminal;
// JSON output is used otherwise and for log files.
package logging
