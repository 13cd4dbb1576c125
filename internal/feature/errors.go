package feature

import "errors"

var (
	// ErrNotFound reports a missing feature or device reference.
	ErrNotFound = errors.New("feature: not found")
	// ErrValidation reports a value rejected by a kind's process step.
	ErrValidation = errors.New("feature: invalid value")
	// ErrUnknownKind reports a kind tag with no registry entry.
	ErrUnknownKind = errors.New("feature: unknown kind")
)
