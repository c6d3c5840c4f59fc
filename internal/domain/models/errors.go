package models

import "errors"

var (
	// ErrInvalidConfiguration is returned before any store access when a run
	// configuration cannot be honoured.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDataUnavailable wraps trade store read failures. Runs abort on it.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrLockTimeout means another batch job held the trade store for too long.
	ErrLockTimeout = errors.New("trade store busy")
)
