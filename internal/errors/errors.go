package errors

import "errors"

var (
	// Poll errors
	ErrFetchFailed        = errors.New("fetch failed")
	ErrAccountConfig      = errors.New("invalid account configuration")
	ErrUnknownAccountKind = errors.New("unknown account kind")
	ErrCycleInProgress    = errors.New("poll cycle already in progress")

	// Configuration errors
	ErrNoAccounts       = errors.New("no accounts configured")
	ErrDuplicateAccount = errors.New("duplicate account")
	ErrMissingAttribute = errors.New("missing account attribute")

	// Sink errors
	ErrSinkUnavailable = errors.New("sink unavailable")
	ErrMetricNotFound  = errors.New("metric not found")
)
