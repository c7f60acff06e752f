package analysis

import "errors"

var (
	// ErrRunInProgress means another analysis run currently holds the lock.
	ErrRunInProgress = errors.New("analysis run already in progress")
	// ErrInvariantViolation means a computed pattern broke its bounds; the
	// run aborts without committing and the prior generation stays
	// authoritative.
	ErrInvariantViolation = errors.New("pattern invariant violation")
)
