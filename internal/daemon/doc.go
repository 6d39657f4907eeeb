// Package daemon runs the long-lived murmur service: it enforces
// single-instance execution with a lock file, owns the resolver and task
// controller, serves the HTTP/WebSocket API, and watches the resource
// directory for engine binary changes.
package daemon
