// Package engine wires the shadow-memory layers into the object the profiler
// calls on every instrumented access.
//
// # Overview
//
// Each address maps to a tag vector: one logical timestamp per active profiling
// level. Get and Set read and publish tag vectors. Underneath, the layers are:
//
//	tvcache     direct-mapped write-back cache of tag vectors
//	segment     SparseTable (addr >> 32) -> MemorySegment ((addr >> 12) & 0xFFFFF)
//	leveltable  per-segment TimeTables, one per level, with version stamps
//	activeset   clock-managed bound on decompressed LevelTables
//	timetable   raw timestamp slots, Width64 or Width32
//
// A cache miss goes down to the LevelTable of the address's 4 KiB segment,
// creating it on first touch and decompressing it if the active set had
// evicted it. Set periodically sweeps every LevelTable to drop levels whose
// version has moved on.
//
// # Thread Safety
//
// NOT thread-safe. Create one Engine per profiled thread.
//
// # Failure
//
// Invariant violations, pool exhaustion and corrupt compressed data panic with
// an error wrapping one of the Err values of this package. There is no
// recovery path on the access path.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/kolkov/critpath/internal/shadow/activeset"
	"github.com/kolkov/critpath/internal/shadow/leveltable"
	"github.com/kolkov/critpath/internal/shadow/segment"
	"github.com/kolkov/critpath/internal/shadow/timetable"
	"github.com/kolkov/critpath/internal/shadow/tvcache"
	"github.com/kolkov/critpath/internal/shadow/version"
)

type (
	// Time is a logical timestamp.
	Time = timetable.Time
	// Version is a per-level restart counter.
	Version = version.Version
	// Width selects 8-byte or 4-byte slot granularity.
	Width = timetable.Width
)

const (
	Width64 = timetable.Width64
	Width32 = timetable.Width32

	// MaxLevel bounds the depth of any tag vector.
	MaxLevel = version.MaxLevel
)

// Engine is the shadow-memory facade. It owns every structure below it.
type Engine struct {
	cfg *config
	log *slog.Logger

	store  *timetable.Store
	pool   *leveltable.Pool
	sparse *segment.SparseTable
	active *activeset.Buffer // nil without compression
	cache  *tvcache.Cache

	nextGC  uint64
	gcRuns  uint64
	gcFreed uint64
	reads   uint64
	writes  uint64
	closed  bool
}

// New creates an engine. See the Opt functions for configuration; every
// option also has an environment variable default.
func New(opts ...func(*config)) (*Engine, error) {
	cfg := resolveConfig(opts...)
	e := &Engine{
		cfg:   cfg,
		log:   cfg.logger,
		store: timetable.NewStore(cfg.maxRegions),
	}
	e.pool = leveltable.NewPool(e.store)
	e.sparse = segment.NewSparseTable(func(high uint32, n int) {
		e.log.Debug("sparse table grew", "high", fmt.Sprintf("%#x", high), "entries", n)
	})
	if cfg.compression {
		e.active = activeset.New(e.pool, cfg.activeSetSize)
	}
	cache, err := tvcache.New(backend{e}, cfg.cacheLines, cfg.cacheDepth, func(from, to int) {
		e.log.Info("tag vector cache resized", "from", from, "to", to)
	})
	if err != nil {
		_ = e.store.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.cache = cache
	e.nextGC = gcDisabled
	if cfg.gcPeriod > 0 {
		e.nextGC = uint64(cfg.gcPeriod)
	}

	e.log.Info("shadow memory ready",
		"cache_lines", cfg.cacheLines,
		"cache_depth", cfg.cacheDepth,
		"compression", cfg.compression,
		"active_set", cfg.activeSetSize,
		"gc_period", cfg.gcPeriod)
	return e, nil
}

const gcDisabled = ^uint64(0)

// align clears the low bits that address within one slot of width.
func align(addr uint64, width Width) uint64 {
	return addr &^ uint64(width.Bytes()-1)
}

// Get returns the size-level tag vector of addr under versions. The slice is
// valid until the next call on the engine. A size below 1 returns nil.
func (e *Engine) Get(addr uint64, size int, versions []Version, width Width) []Time {
	e.checkOpen()
	if size < 1 {
		return nil
	}
	e.reads++
	return e.cache.Get(align(addr, width), size, versions, width)
}

// Set publishes size timestamps for addr under versions.
//
// When the number of live TimeTables reaches the GC threshold, a sweep with
// bound size runs first and the threshold moves up by the GC period.
func (e *Engine) Set(addr uint64, size int, versions []Version, values []Time, width Width) {
	e.checkOpen()
	if size < 1 {
		return
	}
	if uint64(e.store.Live()) >= e.nextGC {
		e.RunGarbageCollector(versions, size)
		e.nextGC += uint64(e.cfg.gcPeriod)
	}
	e.writes++
	e.cache.Set(align(addr, width), size, versions, values, width)
}

// RunGarbageCollector walks every LevelTable and collects levels that are
// stale under versions or at or beyond bound. It returns the number of levels
// freed.
func (e *Engine) RunGarbageCollector(versions []Version, bound int) int {
	e.checkOpen()
	before := e.store.Live()
	freed := 0
	e.sparse.ForEach(func(h leveltable.Handle) {
		freed += e.pool.Get(h).CollectGarbageWithinBounds(versions, bound)
	})
	e.gcRuns++
	e.gcFreed += uint64(freed)
	e.log.Debug("garbage collection",
		"bound", bound,
		"freed_levels", freed,
		"timetables_before", before,
		"timetables_after", e.store.Live())
	return freed
}

// Flush writes every dirty cache line down to the level tables.
func (e *Engine) Flush(versions []Version) {
	e.checkOpen()
	e.cache.Flush(versions)
}

// Close releases all shadow memory. The engine must not be used afterwards;
// outstanding cached timestamps are discarded.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	s := e.Stats()
	e.log.Info("shadow memory closed",
		"reads", s.Reads,
		"writes", s.Writes,
		"gc_runs", s.GCRuns,
		"timetables", s.TimeTables,
		"level_tables", s.LevelTables,
		"cache_hit_rate", s.HitRate())
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("engine: release timetable pool: %w", err)
	}
	return nil
}

func (e *Engine) checkOpen() {
	if e.closed {
		panic(ErrClosed)
	}
}

// levelTable returns the LevelTable covering addr, allocating it on first
// touch and bringing it back into the active set if it was compressed.
func (e *Engine) levelTable(addr uint64, versions []Version) (leveltable.Handle, *leveltable.LevelTable) {
	ms := e.sparse.Element(addr)
	idx := segment.Index(addr)
	h := ms.LevelTableAt(idx)
	if h.IsNil() {
		var lt *leveltable.LevelTable
		h, lt = e.pool.New()
		ms.SetLevelTableAt(idx, h)
		if e.active != nil {
			e.active.Add(h)
		}
		return h, lt
	}
	lt := e.pool.Get(h)
	if e.active != nil && lt.IsCompressed() {
		lt.CollectGarbageUnbounded(versions)
		e.active.Decompress(h)
	}
	return h, lt
}

func (e *Engine) touch(h leveltable.Handle) {
	if e.active != nil {
		e.active.Touch(h)
	}
}

// backend adapts the engine's LevelTable layer to the cache.
type backend struct{ e *Engine }

func (b backend) Fetch(addr uint64, width Width, versions []Version, from int, dst []Time) {
	h, lt := b.e.levelTable(addr, versions)
	for i := range dst {
		l := from + i
		dst[i] = lt.TimeAt(l, addr, versions[l])
	}
	b.e.touch(h)
}

// Store skips zero timestamps for levels that already read as zero, so
// write-back of never-set levels allocates nothing.
func (b backend) Store(addr uint64, width Width, versions []Version, src []Time) {
	h, lt := b.e.levelTable(addr, versions)
	for l, t := range src {
		if t == 0 && lt.TimeAt(l, addr, versions[l]) == 0 {
			continue
		}
		lt.SetTimeAt(l, addr, versions[l], t, width)
	}
	b.e.touch(h)
}
