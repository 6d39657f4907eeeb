// Package hostcaps inspects the host once per process and reports which GPU
// vendors and accelerator APIs are available for engine binary resolution.
//
// Probing is best effort: hardware query failures degrade to a CPU-only
// descriptor instead of propagating, so capability detection can never block
// startup.
package hostcaps
