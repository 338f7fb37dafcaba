package inventory

import "errors"

// Domain errors for the inventory package.
//
//	if errors.Is(err, inventory.ErrThingNotFound) {
//	    // handle not found case
//	}
var (
	// ErrThingNotFound is returned when a thing id does not exist.
	ErrThingNotFound = errors.New("inventory: thing not found")

	// ErrInvalidThing is returned when a thing record lacks its id, uid or type.
	ErrInvalidThing = errors.New("inventory: invalid thing")

	// ErrDiscoveryNotFound is returned when a discovery result does not exist.
	ErrDiscoveryNotFound = errors.New("inventory: discovery result not found")
)
