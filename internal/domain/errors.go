package domain

import "errors"

// Failure taxonomy for one pipeline invocation. Wrap with
// fmt.Errorf("%w: ...") so callers can classify with errors.Is.
var (
	// ErrHistoryUnavailable marks a transient Event History View failure.
	// It fails the whole invocation; the transport layer may redeliver.
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrPersistence marks a storage write failure. Fatal for the
	// invocation so the caller can redeliver.
	ErrPersistence = errors.New("persistence failure")

	// ErrConfigInvalid marks an invalid configuration. Fatal at startup.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrNotFound is returned for lookups with no matching record.
	ErrNotFound = errors.New("record not found")
)
