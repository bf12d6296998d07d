package models

import "errors"

// Error taxonomy for the funding and repayment engine. Callers match with
// errors.Is; each layer wraps these with context via fmt.Errorf("...: %w").
var (
	// ErrInvalidLoanTerms rejects non-positive principal or term, or a
	// repayment frequency the schedule generator does not support.
	ErrInvalidLoanTerms = errors.New("invalid loan terms")

	// ErrMissingRequiredField rejects a computation whose required inputs
	// are absent (e.g. no interest rate when capped interest is requested).
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidCalculationState marks an internal invariant violation,
	// such as a negative fee after validated inputs. Treated as a defect.
	ErrInvalidCalculationState = errors.New("invalid calculation state")

	// ErrRegenerationConflict signals a concurrent schedule regeneration
	// attempt for the same application; the caller should retry.
	ErrRegenerationConflict = errors.New("schedule regeneration already in progress")

	// ErrDispatchFailed marks a notification dispatch failure. The sweep
	// leaves the latch clear so the notification is retried next run.
	ErrDispatchFailed = errors.New("notification dispatch failed")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
