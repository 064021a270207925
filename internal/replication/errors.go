package replication

import "errors"

var (
	// ErrInvalidReference means a message named a unit that does not exist or is gone.
	// The message is dropped.
	ErrInvalidReference = errors.New("invalid unit reference")
	// ErrNotAuthority means a mutation was attempted on a mirror. It is forwarded instead.
	ErrNotAuthority = errors.New("not authority")
	// ErrOutOfRange marks an attribute value that was clamped when a unit was created.
	ErrOutOfRange = errors.New("value out of range")
)
