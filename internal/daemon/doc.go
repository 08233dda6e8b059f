// Package daemon hosts long-running clipflow services.
//
// The daemon enforces single-instance execution with a file lock, owns the
// orchestrator lifecycle, and serves the HTTP API used by the CLI and
// external monitors.
package daemon
