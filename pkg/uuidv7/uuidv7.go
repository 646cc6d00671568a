// Package uuidv7 issues time-ordered identifiers for proposals, substrate
// records, and audit events. UUIDv7 keeps inserts roughly append-ordered in
// btree indexes, which matters for the timeline tables.
package uuidv7

import "github.com/google/uuid"

// New returns a UUIDv7 per RFC 9562.
func New() (uuid.UUID, error) {
	return uuid.NewV7()
}

// NewString returns a UUIDv7 in canonical string form.
func NewString() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
