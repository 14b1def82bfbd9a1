package domain

import "errors"

// Programming and data errors surfaced by the engine. These are never
// retried; they indicate a caller bug or corrupt data rather than a
// transient failure.
var (
	// ErrInvalidRange means a calendar query was given start > end.
	ErrInvalidRange = errors.New("invalid date range: start after end")

	// ErrInvalidRule means a recurring item is missing the field its
	// frequency requires, e.g. a monthly rule without a day of month.
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrUnlinkedTransfer means a transfer pair fails the mutual-link
	// invariant: both legs must reference each other with equal amounts
	// and opposite kinds.
	ErrUnlinkedTransfer = errors.New("transfer legs are not mutually linked")

	// ErrNotFound means a referenced entity does not exist in the store.
	ErrNotFound = errors.New("not found")
)
