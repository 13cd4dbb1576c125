package trigger

import "errors"

var (
	// ErrNotFound reports a missing trigger, group or item.
	ErrNotFound = errors.New("trigger: not found")
	// ErrInvalidReference reports a dangling feature or parent reference.
	// At load time it is fatal: a condition engine must not silently
	// evaluate a default over a broken tree.
	ErrInvalidReference = errors.New("trigger: invalid reference")
	// ErrRootGroup reports an edit that would break the one-root invariant.
	ErrRootGroup = errors.New("trigger: root group cannot be deleted or reparented")
)
