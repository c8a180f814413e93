// Package version implements the per-level version vector consumed by shadow memory.
//
// A profiling level is one nesting depth of the dynamic region tree. Each time a
// region at some level restarts, the profiler bumps that level's version. Shadow
// memory compares the version stamped on a stored timestamp with the current one:
// equal means valid, older means stale (read back as zero).
//
// Key operations:
//   - Bump: region restart at a level (monotonic, never decreases)
//   - Snapshot: the []Version slice handed to every shadow-memory call
//
// The shadow engine never mutates a Vector; it only reads snapshots.
package version

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrLevelRange is raised for a level outside [0, MaxLevel) or a tag vector
// deeper than the versions supplied with it.
var ErrLevelRange = errors.New("shadow: level out of range")

// MaxLevel is the deepest profiling level any shadow structure can address.
//
// Region trees deeper than this are a configuration error; the engine rejects
// them with a fatal assertion rather than silently truncating timestamps.
const MaxLevel = 64

// Version is a per-level restart counter.
type Version = uint64

// Vector maps profiling level to its current version.
//
// The backing array is fixed size so Bump and Get never allocate. Levels in use
// are tracked by depth, which grows as the profiled program recurses deeper.
//
// Thread Safety: NOT thread-safe. One Vector per profiled thread, same as the
// engine it feeds.
type Vector struct {
	v     [MaxLevel]Version
	depth int
}

// New creates a Vector with every level at version 0.
func New() *Vector {
	return &Vector{}
}

// Get returns the current version at level.
//
//go:nosplit
func (vv *Vector) Get(level int) Version {
	return vv.v[level]
}

// Bump advances the version at level and extends the active depth to cover it.
//
// Called when a region at level restarts. All timestamps stamped with the old
// version at this level become stale.
func (vv *Vector) Bump(level int) Version {
	if level < 0 || level >= MaxLevel {
		panic(fmt.Errorf("%w: %d", ErrLevelRange, level))
	}
	vv.v[level]++
	if level >= vv.depth {
		vv.depth = level + 1
	}
	return vv.v[level]
}

// Enter makes level the deepest active level, bumping its version.
//
// This is the common profiler pattern: entering a region at depth d restarts
// level d and truncates anything deeper.
func (vv *Vector) Enter(level int) Version {
	ver := vv.Bump(level)
	vv.depth = level + 1
	return ver
}

// Len returns the number of active levels.
func (vv *Vector) Len() int {
	return vv.depth
}

// Snapshot returns the active prefix of the vector.
//
// The returned slice aliases the Vector; it is valid until the next Bump or
// Enter call, which matches the lifetime of a single shadow-memory operation.
func (vv *Vector) Snapshot() []Version {
	return vv.v[:vv.depth]
}

// Clone returns an independent copy.
func (vv *Vector) Clone() *Vector {
	c := *vv
	return &c
}

// String returns "[v0 v1 ...]" for the active levels.
func (vv *Vector) String() string {
	buf := make([]byte, 0, 2+vv.depth*4)
	buf = append(buf, '[')
	for i := 0; i < vv.depth; i++ {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendUint(buf, vv.v[i], 10)
	}
	return string(append(buf, ']'))
}
