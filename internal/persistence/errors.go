package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when inserting a record whose id is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConflict is returned when a backend rejects a write because of concurrent modification.
	ErrConflict = errors.New("persistence: conflict")
)
