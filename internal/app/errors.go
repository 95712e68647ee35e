package app

import "errors"

// Operation errors, matched with errors.Is and mapped to HTTP statuses by the
// handlers.
var (
	// ErrInvalidRange rejects windows with start >= end or non-positive
	// durations before any computation runs.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrNotFound covers a missing calendar, event, or primary calendar for a
	// block-time target.
	ErrNotFound = errors.New("not found")

	// ErrForbidden covers blocking into a calendar not owned by the caller or
	// into a team calendar.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means the block-time window was no longer free at the
	// re-check inside the insert transaction. The caller may retry with a
	// different window.
	ErrConflict = errors.New("time window conflict")
)
