package ordering

import "errors"

// error kinds returned by the store and the allocator. They are wrapped with
// details, test them with errors.Is.
var (
	// ErrConstraint is returned when a position is already taken within the group
	ErrConstraint = errors.New("position already taken")
	// ErrInvalidPosition is returned for a position outside of the permitted range
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidOrder is returned when a reorder is not a permutation of 1..N
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNotFound is returned when an item does not exist in the group
	ErrNotFound = errors.New("not found")
)
