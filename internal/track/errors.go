package track

import "errors"

var (
	// ErrInvalidRouteState marks malformed tracking state (zero/negative
	// baseline, bad IATA codes, inverted date ranges). Caller bug; fail fast.
	ErrInvalidRouteState = errors.New("invalid route state")

	// ErrTargetArchived is returned when an operation races a cleanup and
	// the target is already archived. In-flight work must abort cleanly.
	ErrTargetArchived = errors.New("target archived")

	// ErrNotFound is returned for lookups of unknown route/trip ids.
	ErrNotFound = errors.New("target not found")

	// ErrCleanupFailed wraps a rolled-back cleanup transaction. The cascade
	// is all-or-nothing, so a failed cleanup left no partial state and is
	// safe to retry.
	ErrCleanupFailed = errors.New("cleanup failed")
)
