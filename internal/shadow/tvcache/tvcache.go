// Package tvcache is a direct-mapped write-back cache of tag vectors.
//
// A tag vector is the array of per-level timestamps of one address. Profiled
// programs hit the same addresses over and over; the cache absorbs those hits
// so that only misses reach the LevelTable, active-set and compression layers.
//
// # Layout
//
// Each line covers one 8-byte word and has two slots, one per 4-byte half.
// A Width64 line uses slot 0 only; a Width32 line uses both. Every slot owns a
// row of depth timestamps in a flat value table plus a parallel row of the
// versions those timestamps were recorded at, and a count of levels the slot
// holds. Levels at or beyond that count have never been brought into the line
// and are fetched from the backend on demand.
//
// The line index XOR-folds two windows of the word address:
//
//	index = ((addr >> 3) & mask) ^ ((addr >> (3 + log2(lines))) & mask)
//
// # Coherence
//
// Writes are write-back: values reach the backend only when a dirty line is
// evicted or the cache is flushed. On eviction each slot is written level by
// level, stopping at the first level whose recorded version is behind the
// current one. Reads zero any cached level whose recorded version is behind.
//
// # Mixed widths
//
// A 64-bit read landing on a Width32 line returns the half whose level-0
// timestamp is larger. This is a heuristic: it picks the half that was written
// most recently in the common case, but it is not exact.
package tvcache

import (
	"fmt"
	"math/bits"

	"github.com/kolkov/critpath/internal/shadow/timetable"
	"github.com/kolkov/critpath/internal/shadow/version"
)

// Time and Version are re-exported for callers of this package.
type (
	Time    = timetable.Time
	Version = version.Version
)

// GrowStep is how many levels the cache depth grows by when a deeper access
// arrives.
const GrowStep = 10

// Backend is the storage layer behind the cache.
type Backend interface {
	// Fetch fills dst[i] with the timestamp of addr at level from+i.
	Fetch(addr uint64, width timetable.Width, versions []Version, from int, dst []Time)
	// Store writes src[l] for addr at level l, stamped with versions[l].
	Store(addr uint64, width timetable.Width, versions []Version, src []Time)
}

type line struct {
	tag   uint64
	size  [2]int32
	width timetable.Width
	valid bool
	dirty bool
}

// Cache is the tag-vector cache. A Cache with zero lines passes every call
// straight to the backend.
//
// Thread Safety: NOT thread-safe.
type Cache struct {
	backend Backend

	lines  []line
	values []Time
	vers   []Version
	mask   uint64
	shift  uint
	depth  int

	scratch  []Time
	onResize func(from, to int)

	stats Stats
}

// Stats counts cache events.
type Stats struct {
	Lines         int
	Depth         int
	ReadHits      uint64
	ReadMisses    uint64
	WriteHits     uint64
	WriteMisses   uint64
	Evictions     uint64 // dirty lines written back
	LevelsEvicted uint64 // levels written back
	Resizes       uint64
	Flushes       uint64
	Heuristic     uint64 // 64-bit reads resolved on a Width32 line
}

// New creates a cache of lineCount lines (a power of two, or 0 to bypass) with
// room for depth levels per slot. onResize, if not nil, is called whenever the
// depth grows.
func New(backend Backend, lineCount, depth int, onResize func(from, to int)) (*Cache, error) {
	if lineCount < 0 || lineCount&(lineCount-1) != 0 {
		return nil, fmt.Errorf("tvcache: line count %d is not a power of two", lineCount)
	}
	if depth <= 0 || depth > version.MaxLevel {
		return nil, fmt.Errorf("tvcache: depth %d outside [1, %d]", depth, version.MaxLevel)
	}
	c := &Cache{
		backend:  backend,
		depth:    depth,
		onResize: onResize,
	}
	if lineCount > 0 {
		c.lines = make([]line, lineCount)
		c.mask = uint64(lineCount - 1)
		c.shift = uint(bits.TrailingZeros(uint(lineCount)))
		c.alloc()
	}
	return c, nil
}

// alloc sizes the value and version tables for the current depth. They are
// one contiguous pair, replaced whole on resize.
func (c *Cache) alloc() {
	n := len(c.lines) * 2 * c.depth
	c.values = make([]Time, n)
	c.vers = make([]Version, n)
}

// Bypass reports whether the cache has no lines.
func (c *Cache) Bypass() bool { return c.lines == nil }

// Index returns the line index addr maps to.
func (c *Cache) Index(addr uint64) int {
	return int(((addr >> 3) & c.mask) ^ ((addr >> (3 + c.shift)) & c.mask))
}

func (c *Cache) row(idx, off int) int { return (idx*2 + off) * c.depth }

func slotAddr(ln *line, off int) (uint64, timetable.Width) {
	if ln.width == timetable.Width64 {
		return ln.tag, timetable.Width64
	}
	return ln.tag + 4*uint64(off), timetable.Width32
}

// Get returns the size-level tag vector of addr. The returned slice aliases the
// cache and is valid until the next call on the cache.
func (c *Cache) Get(addr uint64, size int, vers []Version, width timetable.Width) []Time {
	c.checkSize(size, vers)
	if c.Bypass() {
		c.scratch = growTimes(c.scratch, size)
		c.backend.Fetch(addr, width, vers, 0, c.scratch)
		return c.scratch
	}

	idx := c.Index(addr)
	ln := &c.lines[idx]
	tag := addr &^ 7
	if ln.valid && ln.tag == tag {
		c.stats.ReadHits++
	} else {
		c.stats.ReadMisses++
		c.evict(idx, vers)
		*ln = line{tag: tag, width: width, valid: true}
	}

	off := 0
	switch {
	case ln.width == timetable.Width64 || size == 0:
	case width == timetable.Width32:
		off = int(addr>>2) & 1
	default:
		c.fill(idx, ln, 0, size, vers)
		c.fill(idx, ln, 1, size, vers)
		if c.values[c.row(idx, 0)] <= c.values[c.row(idx, 1)] {
			off = 1
		}
		c.stats.Heuristic++
	}
	c.fill(idx, ln, off, size, vers)
	r := c.row(idx, off)
	return c.values[r : r+size]
}

// fill makes the first size levels of slot off valid against vers: stale
// levels are zeroed and levels the slot never held are fetched.
func (c *Cache) fill(idx int, ln *line, off, size int, vers []Version) {
	r := c.row(idx, off)
	have := int(ln.size[off])
	for l := 0; l < have && l < size; l++ {
		if c.vers[r+l] != vers[l] {
			c.values[r+l] = 0
			c.vers[r+l] = vers[l]
		}
	}
	if size > have {
		a, w := slotAddr(ln, off)
		c.backend.Fetch(a, w, vers, have, c.values[r+have:r+size])
		copy(c.vers[r+have:r+size], vers[have:size])
		ln.size[off] = int32(size)
	}
}

// Set publishes size timestamps for addr. The backend sees them only when the
// line is evicted or flushed.
func (c *Cache) Set(addr uint64, size int, vers []Version, values []Time, width timetable.Width) {
	c.checkSize(size, vers)
	if len(values) < size {
		panic(fmt.Errorf("tvcache: %d values for size %d", len(values), size))
	}
	if c.Bypass() {
		c.backend.Store(addr, width, vers, values[:size])
		return
	}

	idx := c.Index(addr)
	ln := &c.lines[idx]
	tag := addr &^ 7
	if ln.valid && ln.tag == tag {
		c.stats.WriteHits++
	} else {
		c.stats.WriteMisses++
		c.evict(idx, vers)
		*ln = line{tag: tag, width: width, valid: true}
	}

	if ln.width == timetable.Width64 && width == timetable.Width32 {
		c.split(idx, ln)
	}
	switch {
	case ln.width == timetable.Width64:
		c.write(idx, ln, 0, size, vers, values)
	case width == timetable.Width64:
		c.write(idx, ln, 0, size, vers, values)
		c.write(idx, ln, 1, size, vers, values)
	default:
		c.write(idx, ln, int(addr>>2)&1, size, vers, values)
	}
	ln.dirty = true
}

func (c *Cache) write(idx int, ln *line, off, size int, vers []Version, values []Time) {
	r := c.row(idx, off)
	copy(c.values[r:r+size], values[:size])
	copy(c.vers[r:r+size], vers[:size])
	if int(ln.size[off]) < size {
		ln.size[off] = int32(size)
	}
}

// split turns a Width64 line into a Width32 line whose halves both carry the
// word's timestamps.
func (c *Cache) split(idx int, ln *line) {
	r0, r1 := c.row(idx, 0), c.row(idx, 1)
	n := int(ln.size[0])
	copy(c.values[r1:r1+n], c.values[r0:r0+n])
	copy(c.vers[r1:r1+n], c.vers[r0:r0+n])
	ln.size[1] = ln.size[0]
	ln.width = timetable.Width32
}

// evict writes a dirty line back and invalidates it.
func (c *Cache) evict(idx int, vers []Version) {
	ln := &c.lines[idx]
	if !ln.valid {
		return
	}
	if ln.dirty {
		c.writeBack(idx, ln, 0, vers)
		if ln.width == timetable.Width32 {
			c.writeBack(idx, ln, 1, vers)
		}
		c.stats.Evictions++
	}
	*ln = line{}
}

func (c *Cache) writeBack(idx int, ln *line, off int, vers []Version) {
	r := c.row(idx, off)
	n := 0
	for n < int(ln.size[off]) && n < len(vers) && c.vers[r+n] == vers[n] {
		n++
	}
	if n == 0 {
		return
	}
	a, w := slotAddr(ln, off)
	c.backend.Store(a, w, vers, c.values[r:r+n])
	c.stats.LevelsEvicted += uint64(n)
}

// Flush writes every dirty line back and empties the cache.
func (c *Cache) Flush(vers []Version) {
	for i := range c.lines {
		c.evict(i, vers)
	}
	c.stats.Flushes++
}

func (c *Cache) checkSize(size int, vers []Version) {
	if size < 0 || size > len(vers) || size > version.MaxLevel {
		panic(fmt.Errorf("%w: size %d with %d versions", ErrLevelRange, size, len(vers)))
	}
	if size > c.depth && !c.Bypass() {
		c.resize(size, vers)
	}
}

// resize flushes the cache and grows its depth in GrowStep increments until
// size levels fit.
func (c *Cache) resize(size int, vers []Version) {
	c.Flush(vers)
	from := c.depth
	for c.depth < size {
		c.depth += GrowStep
	}
	if c.depth > version.MaxLevel {
		c.depth = version.MaxLevel
	}
	c.alloc()
	c.stats.Resizes++
	if c.onResize != nil {
		c.onResize(from, c.depth)
	}
}

// Depth returns the current number of levels per slot.
func (c *Cache) Depth() int { return c.depth }

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	s := c.stats
	s.Lines = len(c.lines)
	s.Depth = c.depth
	return s
}

func growTimes(b []Time, n int) []Time {
	if cap(b) < n {
		return make([]Time, n)
	}
	return b[:n]
}
