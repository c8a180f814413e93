// Package segment routes 64-bit addresses to LevelTables without a table sized
// to the whole address space.
//
// An address splits into three fields:
//
//	high  = addr >> 32                  SparseTable key
//	index = (addr >> 12) & 0xFFFFF      MemorySegment slot (one LevelTable per 4 KiB)
//	low   = addr & 0xFFF                resolved inside the TimeTable
//
// A SparseTable holds at most MaxEntries MemorySegments, one per distinct high
// half seen so far. Entries are appended and never removed.
//
// Segments and their handle pages come from arena slabs owned by the
// SparseTable, so the access path never allocates them one by one.
package segment

import (
	"fmt"

	"github.com/kolkov/critpath/internal/shadow/arena"
	"github.com/kolkov/critpath/internal/shadow/leveltable"
)

const (
	// HighShift selects the SparseTable key.
	HighShift = 32

	// IndexShift and IndexMask select the MemorySegment slot.
	IndexShift = 12
	IndexMask  = 1<<(HighShift-IndexShift) - 1

	// Slots is the number of LevelTable slots in a MemorySegment.
	Slots = IndexMask + 1

	// MaxEntries bounds the SparseTable.
	MaxEntries = 32
)

// High returns the SparseTable key of addr.
func High(addr uint64) uint32 { return uint32(addr >> HighShift) }

// Index returns the MemorySegment slot of addr.
func Index(addr uint64) int { return int((addr >> IndexShift) & IndexMask) }

// MemorySegment is a direct-indexed array of LevelTable handles covering 4 GiB.
//
// The array is allocated lazily in pages so that a segment only touched in a
// few places costs little more than its page directory.
type MemorySegment struct {
	high  uint32
	pool  *arena.Slab[page]
	pages [Slots / pageSlots]arena.Handle
	count int
}

const (
	pageSlots = 4096
	// pageChunk pages (16 KiB each) are carved per slab chunk.
	pageChunk = 16
)

type page [pageSlots]leveltable.Handle

// High returns the address high half this segment covers.
func (ms *MemorySegment) High() uint32 { return ms.high }

// LevelTableAt returns the handle stored at index, or nil.
func (ms *MemorySegment) LevelTableAt(index int) leveltable.Handle {
	ph := ms.pages[index/pageSlots]
	if ph.IsNil() {
		return 0
	}
	return ms.pool.Get(ph)[index%pageSlots]
}

// SetLevelTableAt stores h at index.
func (ms *MemorySegment) SetLevelTableAt(index int, h leveltable.Handle) {
	var pg *page
	if ph := ms.pages[index/pageSlots]; ph.IsNil() {
		if h.IsNil() {
			return
		}
		ph, pg = ms.pool.MustAlloc()
		ms.pages[index/pageSlots] = ph
	} else {
		pg = ms.pool.Get(ph)
	}
	switch old := pg[index%pageSlots]; {
	case old.IsNil() && !h.IsNil():
		ms.count++
	case !old.IsNil() && h.IsNil():
		ms.count--
	}
	pg[index%pageSlots] = h
}

// Len returns the number of populated slots.
func (ms *MemorySegment) Len() int { return ms.count }

// ForEach calls fn for every populated slot in index order.
func (ms *MemorySegment) ForEach(fn func(index int, h leveltable.Handle)) {
	for p, ph := range ms.pages {
		if ph.IsNil() {
			continue
		}
		for i, h := range ms.pool.Get(ph) {
			if !h.IsNil() {
				fn(p*pageSlots+i, h)
			}
		}
	}
}

// SparseTable maps address high halves to MemorySegments by linear scan.
type SparseTable struct {
	entries  []*MemorySegment
	segments *arena.Slab[MemorySegment]
	pages    *arena.Slab[page]
	onGrow   func(high uint32, n int)
}

// NewSparseTable creates an empty table. onGrow, if not nil, is called after
// each new entry is appended.
func NewSparseTable(onGrow func(high uint32, n int)) *SparseTable {
	return &SparseTable{
		entries:  make([]*MemorySegment, 0, MaxEntries),
		segments: arena.NewSlabChunk[MemorySegment](MaxEntries, MaxEntries),
		pages:    arena.NewSlabChunk[page](pageChunk, 0),
		onGrow:   onGrow,
	}
}

// Element returns the MemorySegment for addr's high half, creating it on first
// sight. Exceeding MaxEntries distinct high halves is fatal.
func (st *SparseTable) Element(addr uint64) *MemorySegment {
	high := High(addr)
	for _, e := range st.entries {
		if e.high == high {
			return e
		}
	}
	if len(st.entries) == MaxEntries {
		panic(fmt.Errorf("%w: %d entries, high %#x", ErrSparseFull, MaxEntries, high))
	}
	_, e := st.segments.MustAlloc()
	e.high = high
	e.pool = st.pages
	st.entries = append(st.entries, e)
	if st.onGrow != nil {
		st.onGrow(high, len(st.entries))
	}
	return e
}

// Lookup returns the MemorySegment for addr without creating one.
func (st *SparseTable) Lookup(addr uint64) *MemorySegment {
	high := High(addr)
	for _, e := range st.entries {
		if e.high == high {
			return e
		}
	}
	return nil
}

// Len returns the number of entries.
func (st *SparseTable) Len() int { return len(st.entries) }

// Pages returns the number of handle pages allocated across all segments.
func (st *SparseTable) Pages() int { return st.pages.Len() }

// ForEach walks every LevelTable handle in every segment.
func (st *SparseTable) ForEach(fn func(h leveltable.Handle)) {
	for _, e := range st.entries {
		e.ForEach(func(_ int, h leveltable.Handle) { fn(h) })
	}
}
