package leveltable

import (
	"errors"

	"github.com/kolkov/critpath/internal/shadow/codec"
	"github.com/kolkov/critpath/internal/shadow/version"
)

var (
	// ErrLevelRange indicates a level outside [0, MaxLevel).
	ErrLevelRange = version.ErrLevelRange

	// ErrCompressed indicates an operation that requires the opposite
	// compression state.
	ErrCompressed = errors.New("leveltable: wrong compression state")

	// ErrCorrupt wraps codec failures during decompression.
	ErrCorrupt = codec.ErrCorrupt
)
