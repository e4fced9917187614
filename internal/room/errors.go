package room

import "errors"

var (
	// ErrRoomNotFound covers both tokens that were never issued and rooms
	// whose TTL has elapsed. The two are deliberately indistinguishable so an
	// expired room leaks nothing about its prior existence.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomConflict is returned when an operation is legal in general but
	// not in the room's current state: a second offer, an answer before any
	// offer, or a second answer.
	ErrRoomConflict = errors.New("conflicting room state")

	// ErrNotYetAvailable is returned when reading a descriptor the peer has
	// not published yet. It is an expected condition, not a failure; clients
	// poll through it.
	ErrNotYetAvailable = errors.New("descriptor not yet available")
)
