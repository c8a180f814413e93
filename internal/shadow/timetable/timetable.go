// Package timetable stores one profiling level's timestamps for one 4 KiB
// address segment.
//
// A TimeTable comes in two widths. Width64 keeps one timestamp per 8-byte word
// (512 slots); Width32 keeps one per 4-byte half-word (1024 slots). Tables start
// at Width64, the common case for pointer-sized traffic, and are split to
// Width32 the first time a 4-byte access lands in them. The split duplicates
// every word slot into both of its halves, so no recorded timestamp is lost.
// There is no way back: merging halves would have to pick one of two timestamps.
//
// Address decomposition (exact constants):
//
//	Width64 slot = (addr >> 3) & 0x1FF
//	Width32 slot = (addr >> 2) & 0x3FF
package timetable

import (
	"strconv"

	"github.com/kolkov/critpath/internal/shadow/arena"
)

// Time is a logical timestamp.
type Time = uint64

// Width is the tagged variant selecting slot granularity.
type Width uint8

const (
	// Width64 keeps one slot per 8-byte word.
	Width64 Width = iota
	// Width32 keeps one slot per 4-byte half-word.
	Width32
)

const (
	// SegmentBits is log2 of the bytes covered by one table.
	SegmentBits = 12

	// Slots64 and Slots32 are the slot counts per width.
	Slots64 = 1 << (SegmentBits - 3)
	Slots32 = 1 << (SegmentBits - 2)

	mask64 = Slots64 - 1
	mask32 = Slots32 - 1
)

// Slots returns the number of timestamp slots for w.
func (w Width) Slots() int {
	if w == Width32 {
		return Slots32
	}
	return Slots64
}

// Bytes returns the access size w stands for.
func (w Width) Bytes() int {
	if w == Width32 {
		return 4
	}
	return 8
}

// Finer reports whether a table of width w must be widened before it can take
// an access of width access.
func (w Width) Finer(access Width) bool {
	return w == Width64 && access == Width32
}

func (w Width) String() string {
	switch w {
	case Width64:
		return "64bit"
	case Width32:
		return "32bit"
	}
	return "Width(" + strconv.Itoa(int(w)) + ")"
}

// Slot returns the slot index of addr in a table of width w.
//
//go:nosplit
func Slot(addr uint64, w Width) int {
	if w == Width32 {
		return int((addr >> 2) & mask32)
	}
	return int((addr >> 3) & mask64)
}

// TimeTable is the raw timestamp storage for one level of one segment.
//
// data is a pool block of exactly Width().Slots() words.
type TimeTable struct {
	width Width
	data  []uint64
}

// Width returns the table's slot granularity.
func (tt *TimeTable) Width() Width { return tt.width }

// Words exposes the backing slots. Used by the compression codec.
func (tt *TimeTable) Words() []uint64 { return tt.data }

// Get returns the timestamp recorded for addr.
//
//go:nosplit
func (tt *TimeTable) Get(addr uint64) Time {
	return tt.data[Slot(addr, tt.width)]
}

// Set records t for an access of width access at addr.
//
// A Width32 table receiving a Width64 access stores t in both halves of the
// word. A Width64 table cannot take a Width32 access; callers widen first.
//
//go:nosplit
func (tt *TimeTable) Set(addr uint64, t Time, access Width) {
	if tt.width.Finer(access) {
		panic("timetable: 32bit access on 64bit table without widen")
	}
	if tt.width == Width32 && access == Width64 {
		i := Slot(addr, Width32) &^ 1
		tt.data[i] = t
		tt.data[i+1] = t
		return
	}
	tt.data[Slot(addr, tt.width)] = t
}

// Clean zeroes every slot.
func (tt *TimeTable) Clean() {
	clear(tt.data)
}

// Handle references a TimeTable inside a Store. Zero is nil.
type Handle arena.Handle

// IsNil reports whether h refers to no table.
func (h Handle) IsNil() bool { return h == 0 }

// Store owns the header and payload pools for every TimeTable of one engine.
type Store struct {
	headers *arena.Slab[TimeTable]
	blocks  *arena.Blocks

	allocs   uint64
	frees    uint64
	converts uint64
}

// NewStore creates an empty store. maxRegions bounds payload backing regions
// (0 = unbounded).
func NewStore(maxRegions int) *Store {
	return &Store{
		headers: arena.NewSlab[TimeTable](0),
		blocks:  arena.NewBlocks(maxRegions, Slots64, Slots32),
	}
}

// New allocates a zeroed table of width w.
func (s *Store) New(w Width) Handle {
	h, tt := s.headers.MustAlloc()
	tt.width = w
	tt.data = s.blocks.MustAlloc(w.Slots())
	s.allocs++
	return Handle(h)
}

// Get resolves h. It panics on a nil or freed handle.
func (s *Store) Get(h Handle) *TimeTable {
	return s.headers.Get(arena.Handle(h))
}

// Free releases the table and its payload block.
func (s *Store) Free(h Handle) {
	tt := s.Get(h)
	s.blocks.Free(tt.data)
	s.headers.Free(arena.Handle(h))
	s.frees++
}

// Widen converts a Width64 table to Width32 in place, duplicating each word slot
// into both half-word slots. Widening a Width32 table is a no-op.
func (s *Store) Widen(h Handle) {
	tt := s.Get(h)
	if tt.width == Width32 {
		return
	}
	dst := s.blocks.MustAlloc(Slots32)
	for i, v := range tt.data {
		dst[2*i] = v
		dst[2*i+1] = v
	}
	s.blocks.Free(tt.data)
	tt.data = dst
	tt.width = Width32
	s.converts++
}

// Live returns the number of allocated tables.
func (s *Store) Live() int { return s.headers.Len() }

// Bytes returns payload bytes held by live tables.
func (s *Store) Bytes() int { return s.blocks.BytesInUse() }

// Counters returns lifetime allocation, free, and widen counts.
func (s *Store) Counters() (allocs, frees, converts uint64) {
	return s.allocs, s.frees, s.converts
}

// Close releases all backing memory.
func (s *Store) Close() error {
	return s.blocks.Close()
}
