// Package resolve selects and loads the engine binary for the current host.
//
// Each platform/arch pair has a static ordered candidate list (primary,
// secondary, fallback). Resolution filters candidates by the probed
// accelerators, reorders within each tier by the user's vendor preference,
// and walks the list until one binary exists on disk and loads. The result
// is memoized for the process lifetime; failures are never cached.
package resolve
