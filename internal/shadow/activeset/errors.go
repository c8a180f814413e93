package activeset

import "errors"

// ErrNotActive is raised when a table's membership contradicts the requested
// operation: touching a table outside the set, or adding one already in it.
var ErrNotActive = errors.New("activeset: membership violation")
