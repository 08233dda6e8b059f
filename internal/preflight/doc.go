// Package preflight provides readiness checks for the binaries, directories,
// and service credentials the pipeline depends on.
//
// The daemon runs RunAll once at startup and logs failures instead of
// refusing to start: a missing publish key should not block discovery and
// analysis of new clips, and individual stages already surface configuration
// errors per job.
package preflight
