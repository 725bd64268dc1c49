// Package store persists threads and posting sessions in Postgres.
package store

import (
	"errors"
	"regexp"
)

var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrSessionActive is returned when a thread already has a posting
	// session that has not finished.
	ErrSessionActive = errors.New("thread already has an active posting session")
)

var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// ValidUUID reports whether id looks like a UUID, which keeps obviously
// malformed ids out of queries.
func ValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}
