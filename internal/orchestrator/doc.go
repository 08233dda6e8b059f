// Package orchestrator drives jobs through the pipeline state machine.
//
// A repeating timer and the manual trigger endpoint both request a pass.
// Passes are single-flight: a trigger arriving while a pass is running is
// dropped. Each pass ingests newly discovered clips (subject to backlog
// backpressure), then dispatches every runnable job onto a bounded worker
// pool. Per-job locks guarantee at most one stage execution per job at any
// time, and every status change goes through a compare-and-swap update so
// concurrent workers cannot lose writes.
package orchestrator
