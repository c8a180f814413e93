// Package leveltable groups the per-level TimeTables of one 4 KiB segment and
// tracks which of them are still valid.
//
// Every level carries the version that was current when it was last written.
// A read whose current version differs sees zero; a write whose current version
// differs cleans the table first. Region restarts therefore cost nothing up
// front: invalidation is paid lazily, one table at a time, on the next access.
//
// When the active set evicts a LevelTable, Compress replaces its TimeTables with
// blobs. Level 0 is encoded as-is; each deeper level is encoded as its
// difference from the next shallower level, which is small because timestamps
// of nested regions track each other closely. Decompress reverses this from
// level 0 upward.
package leveltable

import (
	"fmt"

	"github.com/kolkov/critpath/internal/shadow/arena"
	"github.com/kolkov/critpath/internal/shadow/codec"
	"github.com/kolkov/critpath/internal/shadow/timetable"
	"github.com/kolkov/critpath/internal/shadow/version"
)

// MaxLevel is the number of level slots per table.
const MaxLevel = version.MaxLevel

// LevelTable owns up to MaxLevel TimeTables for one segment.
//
// Exactly one of tables[l] and blobs[l] is meaningful per level, depending on
// the compressed flag. depth is one past the deepest populated level.
type LevelTable struct {
	pool *Pool

	tables   [MaxLevel]timetable.Handle
	versions [MaxLevel]version.Version
	widths   [MaxLevel]timetable.Width
	blobs    [][]byte

	depth      int
	compressed bool
	activeSlot int32 // ring position + 1 while in the active set
}

// ActiveSlot returns the table's position in the active set, or -1.
func (lt *LevelTable) ActiveSlot() int { return int(lt.activeSlot) - 1 }

// SetActiveSlot records the table's position in the active set; -1 clears it.
func (lt *LevelTable) SetActiveSlot(slot int) { lt.activeSlot = int32(slot + 1) }

// IsCompressed reports the table's state.
func (lt *LevelTable) IsCompressed() bool { return lt.compressed }

// Depth returns one past the deepest populated level.
func (lt *LevelTable) Depth() int { return lt.depth }

// VersionAt returns the version stamped on level.
func (lt *LevelTable) VersionAt(level int) version.Version { return lt.versions[level] }

// HasLevel reports whether level holds a table (or, when compressed, a blob).
func (lt *LevelTable) HasLevel(level int) bool {
	if lt.compressed {
		return level < len(lt.blobs) && lt.blobs[level] != nil
	}
	return !lt.tables[level].IsNil()
}

func (lt *LevelTable) checkLevel(level int) {
	if level < 0 || level >= MaxLevel {
		panic(fmt.Errorf("%w: level %d", ErrLevelRange, level))
	}
}

func (lt *LevelTable) checkUncompressed() {
	if lt.compressed {
		panic(fmt.Errorf("%w: access to compressed level table", ErrCompressed))
	}
}

// TimeAt returns the timestamp for addr at level, or 0 if the level was never
// written or its stamp differs from cur.
func (lt *LevelTable) TimeAt(level int, addr uint64, cur version.Version) timetable.Time {
	lt.checkLevel(level)
	lt.checkUncompressed()

	h := lt.tables[level]
	if h.IsNil() || lt.versions[level] != cur {
		return 0
	}
	return lt.pool.store.Get(h).Get(addr)
}

// SetTimeAt records value for addr at level and stamps the level with cur.
//
// A missing table is allocated at width. A stale table is cleaned before the
// write. A Width64 table receiving a Width32 access is widened first.
func (lt *LevelTable) SetTimeAt(level int, addr uint64, cur version.Version, value timetable.Time, width timetable.Width) {
	lt.checkLevel(level)
	lt.checkUncompressed()

	store := lt.pool.store
	h := lt.tables[level]
	if h.IsNil() {
		h = store.New(width)
		lt.tables[level] = h
		if level >= lt.depth {
			lt.depth = level + 1
		}
	} else {
		tt := store.Get(h)
		if tt.Width().Finer(width) {
			store.Widen(h)
		}
		if lt.versions[level] != cur {
			store.Get(h).Clean()
		}
	}
	store.Get(h).Set(addr, value, width)
	lt.versions[level] = cur
	lt.pool.levelWrites++
}

// CollectGarbageWithinBounds frees every level below bound whose stamp is older
// than cur, and every level at or above bound.
//
// On a compressed table only a contiguous deepest run of levels can be freed,
// because each blob is decoded relative to the level above it. Stale levels
// shallower than a surviving level stay until a sweep finds the table
// decompressed; until then they read as zero.
//
// Returns the number of levels freed.
func (lt *LevelTable) CollectGarbageWithinBounds(cur []version.Version, bound int) int {
	if bound < 0 || bound > MaxLevel {
		panic(fmt.Errorf("%w: gc bound %d", ErrLevelRange, bound))
	}
	freed := 0
	if lt.compressed {
		for level := lt.depth - 1; level >= 0; level-- {
			if level < bound && !lt.stale(level, cur) {
				break
			}
			freed += lt.drop(level)
		}
	} else {
		for level := 0; level < lt.depth; level++ {
			if level >= bound || lt.stale(level, cur) {
				freed += lt.drop(level)
			}
		}
	}
	lt.trimDepth()
	return freed
}

// CollectGarbageUnbounded frees the deepest run of levels that are stale or
// missing, stopping at the first level that still holds a valid stamp. Levels
// beyond len(cur) count as stale. Stale levels above a valid one are kept:
// TimeAt already reads them as zero, and deeper blobs decode against them.
//
// The engine runs this before decompressing a table, so restored tables carry
// no dead deep levels.
func (lt *LevelTable) CollectGarbageUnbounded(cur []version.Version) int {
	freed := 0
	for level := lt.depth - 1; level >= 0; level-- {
		if lt.HasLevel(level) && !lt.stale(level, cur) {
			break
		}
		freed += lt.drop(level)
	}
	lt.trimDepth()
	return freed
}

// stale reports whether level's stamp is behind cur. Levels not covered by cur
// are stale.
func (lt *LevelTable) stale(level int, cur []version.Version) bool {
	if level >= len(cur) {
		return true
	}
	return lt.versions[level] < cur[level]
}

// drop frees whatever storage level holds and reports 1 if it held any.
func (lt *LevelTable) drop(level int) int {
	if lt.compressed {
		if level >= len(lt.blobs) || lt.blobs[level] == nil {
			return 0
		}
		lt.pool.compressedBytes -= int64(len(lt.blobs[level]))
		lt.blobs[level] = nil
	} else {
		h := lt.tables[level]
		if h.IsNil() {
			return 0
		}
		lt.pool.store.Free(h)
		lt.tables[level] = 0
	}
	lt.versions[level] = 0
	lt.widths[level] = timetable.Width64
	return 1
}

func (lt *LevelTable) trimDepth() {
	for lt.depth > 0 && !lt.HasLevel(lt.depth-1) {
		lt.depth--
	}
	if lt.compressed && lt.depth < len(lt.blobs) {
		lt.blobs = lt.blobs[:lt.depth]
	}
}

// Compress replaces every TimeTable with a compressed blob and returns the
// number of bytes reclaimed (negative if blobs came out larger).
//
// Level l > 0 is stored as base - value, where base is level l-1 viewed at
// level l's width; an absent shallower level is a zero base.
func (lt *LevelTable) Compress() int64 {
	if lt.compressed {
		panic(fmt.Errorf("%w: compress twice", ErrCompressed))
	}
	p := lt.pool
	store := p.store
	if lt.depth > 0 {
		lt.blobs = make([][]byte, lt.depth)
	}
	var reclaimed int64

	for level := lt.depth - 1; level >= 0; level-- {
		h := lt.tables[level]
		if h.IsNil() {
			continue
		}
		tt := store.Get(h)
		words := tt.Words()
		src := words
		if level > 0 {
			p.diff = growWords(p.diff, len(words))
			shallow := lt.tables[level-1]
			for i, v := range words {
				p.diff[i] = baseAt(store, shallow, tt.Width(), i) - v
			}
			src = p.diff
		}
		blob := p.codec.Encode(src)
		lt.blobs[level] = blob
		lt.widths[level] = tt.Width()
		reclaimed += int64(len(words)*8) - int64(len(blob))
		p.compressedBytes += int64(len(blob))
	}
	// Free only after every deeper level has been diffed against its base.
	for level := 0; level < lt.depth; level++ {
		if h := lt.tables[level]; !h.IsNil() {
			store.Free(h)
			lt.tables[level] = 0
		}
	}
	lt.compressed = true
	p.compressions++
	return reclaimed
}

// Decompress restores every level from its blob and returns the number of
// extra bytes now held in memory.
//
// A blob that fails to decode is fatal.
func (lt *LevelTable) Decompress() int64 {
	if !lt.compressed {
		panic(fmt.Errorf("%w: decompress of uncompressed table", ErrCompressed))
	}
	p := lt.pool
	store := p.store
	var overhead int64

	for level := 0; level < lt.depth; level++ {
		if level >= len(lt.blobs) || lt.blobs[level] == nil {
			continue
		}
		blob := lt.blobs[level]
		w := lt.widths[level]
		h := store.New(w)
		words := store.Get(h).Words()
		if err := p.codec.Decode(blob, words); err != nil {
			panic(fmt.Errorf("leveltable: level %d: %w", level, err))
		}
		if level > 0 {
			shallow := lt.tables[level-1]
			for i, d := range words {
				words[i] = baseAt(store, shallow, w, i) - d
			}
		}
		lt.tables[level] = h
		overhead += int64(len(words)*8) - int64(len(blob))
		p.compressedBytes -= int64(len(blob))
	}
	lt.blobs = nil
	lt.compressed = false
	p.decompressions++
	return overhead
}

// baseAt returns slot i of the table behind shallow as seen by a table of
// width w. A Width64 base seen at Width32 repeats each word for both halves;
// a Width32 base seen at Width64 contributes the lower half of each word.
func baseAt(store *timetable.Store, shallow timetable.Handle, w timetable.Width, i int) uint64 {
	if shallow.IsNil() {
		return 0
	}
	base := store.Get(shallow)
	words := base.Words()
	switch {
	case base.Width() == w:
		return words[i]
	case base.Width() == timetable.Width64:
		return words[i/2]
	default:
		return words[2*i]
	}
}

func growWords(b []uint64, n int) []uint64 {
	if cap(b) < n {
		return make([]uint64, n)
	}
	return b[:n]
}

// Handle references a LevelTable inside a Pool. Zero is nil.
type Handle arena.Handle

// IsNil reports whether h refers to no table.
func (h Handle) IsNil() bool { return h == 0 }

// Pool allocates LevelTables and owns the shared TimeTable store and codec.
type Pool struct {
	slab  *arena.Slab[LevelTable]
	store *timetable.Store
	codec codec.Codec
	diff  []uint64

	levelWrites     uint64
	compressions    uint64
	decompressions  uint64
	compressedBytes int64
}

// NewPool creates a pool whose tables draw TimeTables from store.
func NewPool(store *timetable.Store) *Pool {
	return &Pool{
		slab:  arena.NewSlab[LevelTable](0),
		store: store,
	}
}

// New allocates an empty, uncompressed LevelTable.
func (p *Pool) New() (Handle, *LevelTable) {
	h, lt := p.slab.MustAlloc()
	lt.pool = p
	return Handle(h), lt
}

// Get resolves h. It panics on a nil or freed handle.
func (p *Pool) Get(h Handle) *LevelTable {
	return p.slab.Get(arena.Handle(h))
}

// Free releases the table and all storage it holds.
func (p *Pool) Free(h Handle) {
	lt := p.Get(h)
	for level := lt.depth - 1; level >= 0; level-- {
		lt.drop(level)
	}
	p.slab.Free(arena.Handle(h))
}

// Store returns the TimeTable store shared by every table in the pool.
func (p *Pool) Store() *timetable.Store { return p.store }

// Live returns the number of allocated LevelTables.
func (p *Pool) Live() int { return p.slab.Len() }

// Stats is a snapshot of pool-wide counters.
type Stats struct {
	// LevelTables is the number of live LevelTables.
	LevelTables int
	// LevelWrites counts SetTimeAt calls.
	LevelWrites uint64
	// Compressions and Decompressions count state transitions.
	Compressions   uint64
	Decompressions uint64
	// CompressedBytes is the total size of blobs currently held.
	CompressedBytes int64
	// CodecSrcBytes and CodecDestBytes are lifetime codec input and output.
	CodecSrcBytes  uint64
	CodecDestBytes uint64
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	src, dest := p.codec.Ratio()
	return Stats{
		LevelTables:     p.slab.Len(),
		LevelWrites:     p.levelWrites,
		Compressions:    p.compressions,
		Decompressions:  p.decompressions,
		CompressedBytes: p.compressedBytes,
		CodecSrcBytes:   src,
		CodecDestBytes:  dest,
	}
}
