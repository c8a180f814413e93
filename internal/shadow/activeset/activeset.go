// Package activeset bounds how many LevelTables are held decompressed.
//
// The set is a fixed ring of at most Capacity entries, each a LevelTable handle
// plus a reference bit. When the ring is full, a clock hand sweeps it: entries
// with the bit set get a second chance (bit cleared, hand moves on), and the
// first entry found with the bit clear is compressed and replaced. New and
// touched entries have the bit set.
//
// The approximation of LRU only affects cost: evicting a table that is about
// to be used again costs one extra decompress, never a wrong timestamp.
package activeset

import (
	"fmt"

	"github.com/kolkov/critpath/internal/shadow/leveltable"
)

type entry struct {
	h   leveltable.Handle
	ref bool
}

// Buffer is the active set. A LevelTable is in the Buffer iff it is
// uncompressed.
type Buffer struct {
	pool *leveltable.Pool
	ring []entry
	hand int

	evictions uint64
	accesses  uint64
	gained    int64
}

// New creates an active set of the given capacity over tables from pool.
func New(pool *leveltable.Pool, capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Errorf("activeset: capacity %d", capacity))
	}
	return &Buffer{
		pool: pool,
		ring: make([]entry, 0, capacity),
	}
}

// Add inserts h with its reference bit set, compressing a victim first if the
// set is full. It returns the bytes reclaimed by that compression.
//
// h must be uncompressed and not already in the set.
func (b *Buffer) Add(h leveltable.Handle) int64 {
	lt := b.pool.Get(h)
	if lt.ActiveSlot() >= 0 {
		panic(fmt.Errorf("%w: table %d already active", ErrNotActive, h))
	}
	if lt.IsCompressed() {
		panic(fmt.Errorf("%w: adding compressed table %d", leveltable.ErrCompressed, h))
	}

	if len(b.ring) < cap(b.ring) {
		b.ring = append(b.ring, entry{h: h, ref: true})
		lt.SetActiveSlot(len(b.ring) - 1)
		return 0
	}

	v := b.victim()
	old := b.pool.Get(b.ring[v].h)
	old.SetActiveSlot(-1)
	gained := old.Compress()
	b.evictions++
	b.gained += gained

	b.ring[v] = entry{h: h, ref: true}
	lt.SetActiveSlot(v)
	b.hand = (v + 1) % len(b.ring)
	return gained
}

// victim advances the hand to the first entry with a clear reference bit,
// clearing set bits on the way.
func (b *Buffer) victim() int {
	for {
		e := &b.ring[b.hand]
		if !e.ref {
			return b.hand
		}
		e.ref = false
		b.hand = (b.hand + 1) % len(b.ring)
	}
}

// Touch marks h as recently used. h must be in the set.
func (b *Buffer) Touch(h leveltable.Handle) {
	slot := b.pool.Get(h).ActiveSlot()
	if slot < 0 || b.ring[slot].h != h {
		panic(fmt.Errorf("%w: touch of table %d", ErrNotActive, h))
	}
	b.ring[slot].ref = true
	b.accesses++
}

// Decompress restores h and adds it to the set. It returns bytes reclaimed by
// any eviction minus bytes spent decompressing h.
func (b *Buffer) Decompress(h leveltable.Handle) int64 {
	loss := b.pool.Get(h).Decompress()
	gain := b.Add(h)
	b.gained -= loss
	return gain - loss
}

// Contains reports whether h is in the set.
func (b *Buffer) Contains(h leveltable.Handle) bool {
	slot := b.pool.Get(h).ActiveSlot()
	return slot >= 0 && slot < len(b.ring) && b.ring[slot].h == h
}

// Len returns the number of active tables.
func (b *Buffer) Len() int { return len(b.ring) }

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int { return cap(b.ring) }

// Stats is a snapshot of active-set counters.
type Stats struct {
	Active    int
	Capacity  int
	Evictions uint64
	Accesses  uint64
	// NetBytes is bytes reclaimed by evictions minus bytes spent on
	// decompressions over the buffer's lifetime.
	NetBytes int64
}

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Active:    len(b.ring),
		Capacity:  cap(b.ring),
		Evictions: b.evictions,
		Accesses:  b.accesses,
		NetBytes:  b.gained,
	}
}
