package registration

import "errors"

var (
	ErrAlreadyRegistered = errors.New("email address is already registered for this event")
	// ErrNumbersExhausted is returned when every generated registration
	// number collided with an existing one.
	ErrNumbersExhausted = errors.New("could not assign a unique registration number")
)
