package queue

import "errors"

// ErrConflict indicates a uniqueness or compare-and-swap violation: either a
// job already exists for the source reference, or a CAS update observed a
// status other than the expected one. Callers skip or re-read; a conflict is
// never surfaced as a job failure.
var ErrConflict = errors.New("queue conflict")

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrIllegalTransition indicates an update attempted to move a job against
// the state machine.
var ErrIllegalTransition = errors.New("illegal status transition")
