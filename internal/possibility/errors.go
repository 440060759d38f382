package possibility

import "errors"

var (
	// ErrInvalidArgument reports malformed construction input or a blank lookup name.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound reports a lookup for a name that was never registered.
	ErrNotFound = errors.New("not found")
)
