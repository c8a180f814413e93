package shadow

import (
	"github.com/kolkov/critpath/internal/shadow/engine"
	"github.com/kolkov/critpath/internal/shadow/version"
)

type (
	// Time is a logical timestamp. Zero means never written under the
	// current version.
	Time = engine.Time
	// LevelVersion is a per-level restart counter.
	LevelVersion = engine.Version
	// Width is the access granularity of a Get or Set.
	Width = engine.Width
	// Stats is a point-in-time snapshot of the counters of a Memory.
	Stats = engine.Stats
	// Option configures a Memory.
	Option = engine.Option
)

const (
	// Width64 addresses 8-byte words.
	Width64 = engine.Width64
	// Width32 addresses 4-byte half-words.
	Width32 = engine.Width32
	// MaxLevel is the deepest profiling level supported.
	MaxLevel = engine.MaxLevel
)

// Options. Each one overrides the matching SHADOWMEM_* environment variable.
var (
	OptLogger        = engine.OptLogger
	OptCacheLines    = engine.OptCacheLines
	OptCacheDepth    = engine.OptCacheDepth
	OptCompression   = engine.OptCompression
	OptActiveSetSize = engine.OptActiveSetSize
	OptGCPeriod      = engine.OptGCPeriod
	OptMaxRegions    = engine.OptMaxRegions
)

// Errors raised, wrapped, by panics on misuse. Use errors.Is on the
// recovered value.
var (
	ErrLevelRange = engine.ErrLevelRange
	ErrClosed     = engine.ErrClosed
	ErrSparseFull = engine.ErrSparseFull
)

// Memory is shadow memory together with the version vector of one profiled
// thread.
type Memory struct {
	e  *engine.Engine
	vv *version.Vector
}

// New creates a Memory with every level at version zero.
func New(opts ...Option) (*Memory, error) {
	e, err := engine.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Memory{e: e, vv: version.New()}, nil
}

// Enter starts a new iteration of the region at level. The level's version is
// bumped and deeper levels become inactive.
func (m *Memory) Enter(level int) {
	m.vv.Enter(level)
}

// Bump restarts level without changing which levels are active, except to
// extend them to cover level.
func (m *Memory) Bump(level int) {
	m.vv.Bump(level)
}

// Depth returns the number of active levels.
func (m *Memory) Depth() int {
	return m.vv.Len()
}

// Versions returns a copy of the active version vector.
func (m *Memory) Versions() []LevelVersion {
	return append([]LevelVersion(nil), m.vv.Snapshot()...)
}

// Load returns the first size levels of the tag vector of the 8-byte word at
// addr under the current versions. The slice is valid until the next call on
// m.
func (m *Memory) Load(addr uint64, size int) []Time {
	return m.e.Get(addr, size, m.vv.Snapshot(), Width64)
}

// Load32 is Load for the 4-byte half-word at addr.
func (m *Memory) Load32(addr uint64, size int) []Time {
	return m.e.Get(addr, size, m.vv.Snapshot(), Width32)
}

// Store records values as the tag vector of the 8-byte word at addr, one
// timestamp per level starting at level 0.
func (m *Memory) Store(addr uint64, values []Time) {
	m.e.Set(addr, len(values), m.vv.Snapshot(), values, Width64)
}

// Store32 is Store for the 4-byte half-word at addr.
func (m *Memory) Store32(addr uint64, values []Time) {
	m.e.Set(addr, len(values), m.vv.Snapshot(), values, Width32)
}

// Get reads a tag vector under an explicit version vector, bypassing the one
// m keeps.
func (m *Memory) Get(addr uint64, size int, versions []LevelVersion, width Width) []Time {
	return m.e.Get(addr, size, versions, width)
}

// Set writes a tag vector under an explicit version vector.
func (m *Memory) Set(addr uint64, size int, versions []LevelVersion, values []Time, width Width) {
	m.e.Set(addr, size, versions, values, width)
}

// Collect frees every stored level that is stale under the current versions,
// and every level at or beyond bound. It returns the number of levels freed.
func (m *Memory) Collect(bound int) int {
	return m.e.RunGarbageCollector(m.vv.Snapshot(), bound)
}

// Flush writes cached tag vectors back to the level tables.
func (m *Memory) Flush() {
	m.e.Flush(m.vv.Snapshot())
}

// Stats returns the current counters.
func (m *Memory) Stats() Stats {
	return m.e.Stats()
}

// Close releases all shadow memory. Close is idempotent.
func (m *Memory) Close() error {
	return m.e.Close()
}
