package model

import (
	"errors"
	"fmt"
)

// ErrComputationSkipped signals that a date or subject had zero eligible
// classes. It is a defined no-op, not a failure; callers branch on it
// rather than surfacing it.
var ErrComputationSkipped = errors.New("computation skipped: no eligible classes")

// InvalidDateError reports a malformed or out-of-range date input.
// Dates are rejected rather than coerced so counts stay trustworthy.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q", e.Input)
}

// InconsistentScheduleError reports a subject key with no matching
// schedule slot where one is required.
type InconsistentScheduleError struct {
	SubjectKey string
}

func (e *InconsistentScheduleError) Error() string {
	return fmt.Sprintf("subject %q has no schedule slot", e.SubjectKey)
}

// UploadFailure wraps a transient persistence error during a batch
// upload. Retryable: the staging cache is kept and the same batch is
// retried on the next flush.
type UploadFailure struct {
	Err error
}

func (e *UploadFailure) Error() string {
	return fmt.Sprintf("batch upload failed: %v", e.Err)
}

func (e *UploadFailure) Unwrap() error { return e.Err }
