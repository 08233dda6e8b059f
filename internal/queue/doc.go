// Package queue persists video jobs in SQLite and enforces the job state
// machine contract: unique source references, compare-and-swap status
// updates, and forward-only transitions.
package queue
