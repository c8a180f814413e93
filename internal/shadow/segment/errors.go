package segment

import "errors"

// ErrSparseFull is raised when more than MaxEntries distinct address high
// halves are touched.
var ErrSparseFull = errors.New("segment: sparse table full")
