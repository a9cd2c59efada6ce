package contact

import "errors"

// Sentinel errors for the contact service layer.
var (
	ErrInvalidTransition = errors.New("contact status can only move forward")
)
