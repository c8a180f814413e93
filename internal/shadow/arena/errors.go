package arena

import "errors"

var (
	// ErrPoolExhausted is returned when a pool hits its configured limit or
	// the operating system refuses to map another backing region.
	ErrPoolExhausted = errors.New("arena: pool exhausted")

	// ErrBadHandle indicates a nil, out-of-range, or already freed handle.
	ErrBadHandle = errors.New("arena: invalid handle")
)
