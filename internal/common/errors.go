// Package common defines shared constants and sentinel errors used across
// the mealkeep engine layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Sync-level errors.
	ErrorAnonymousSession = errors.New("anonymous session is not transmitted")
	ErrorRemoteRejected   = errors.New("remote write rejected")

	// Identity errors.
	ErrInvalidToken = errors.New("invalid token")

	// Backup errors.
	ErrorUnknownFormat = errors.New("unknown backup format")
	ErrorEmptyContent  = errors.New("empty backup content")
)
