package tvcache

import "github.com/kolkov/critpath/internal/shadow/version"

// ErrLevelRange indicates a tag vector deeper than the version vector or the
// maximum level.
var ErrLevelRange = version.ErrLevelRange
