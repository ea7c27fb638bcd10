package store

import "errors"

var (
	// ErrInvalidID is returned when a record id is empty.
	ErrInvalidID = errors.New("record id must not be empty")

	// ErrFlush wraps a snapshot write failure. The in-memory state already
	// reflects the mutation when it is returned.
	ErrFlush = errors.New("snapshot flush failed")
)

// ErrNotFound is returned when a record doesn't exist in the store.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "record not found"
	}

	return "record not found: " + e.ID
}
