package engine

import (
	"errors"

	"github.com/kolkov/critpath/internal/shadow/activeset"
	"github.com/kolkov/critpath/internal/shadow/arena"
	"github.com/kolkov/critpath/internal/shadow/codec"
	"github.com/kolkov/critpath/internal/shadow/leveltable"
	"github.com/kolkov/critpath/internal/shadow/segment"
	"github.com/kolkov/critpath/internal/shadow/version"
)

// Every failure on the access path is a panic whose value wraps one of these.
// Use errors.Is on a recovered value to classify it.
var (
	ErrLevelRange    = version.ErrLevelRange
	ErrCompressed    = leveltable.ErrCompressed
	ErrNotActive     = activeset.ErrNotActive
	ErrCorrupt       = codec.ErrCorrupt
	ErrSparseFull    = segment.ErrSparseFull
	ErrPoolExhausted = arena.ErrPoolExhausted

	ErrClosed = errors.New("engine: use after close")
)
