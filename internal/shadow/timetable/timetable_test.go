package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestSlot verifies the documented shift/mask decomposition.
func TestSlot(t *testing.T) {
	tests := []struct {
		addr uint64
		w    Width
		want int
	}{
		{0x1000, Width64, 0},
		{0x1008, Width64, 1},
		{0x1ff8, Width64, 511},
		{0x2000, Width64, 0},
		{0x1000, Width32, 0},
		{0x1004, Width32, 1},
		{0x1ffc, Width32, 1023},
		{0xdead_beef_0000_1010, Width64, 2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Slot(tc.addr, tc.w), "addr %#x %v", tc.addr, tc.w)
	}
}

// TestWidthSlots verifies slot counts cover one 4 KiB segment.
func TestWidthSlots(t *testing.T) {
	assert.Equal(t, 4096, Width64.Slots()*Width64.Bytes())
	assert.Equal(t, 4096, Width32.Slots()*Width32.Bytes())
	assert.True(t, Width64.Finer(Width32))
	assert.False(t, Width32.Finer(Width64))
	assert.False(t, Width64.Finer(Width64))
	assert.Equal(t, "64bit", Width64.String())
	assert.Equal(t, "Width(9)", Width(9).String())
}

// TestTimeTableSetGet verifies basic storage in a Width64 table.
func TestTimeTableSetGet(t *testing.T) {
	s := newStore(t)
	h := s.New(Width64)
	tt := s.Get(h)

	assert.Zero(t, tt.Get(0x1010))
	tt.Set(0x1010, 77, Width64)
	assert.Equal(t, Time(77), tt.Get(0x1010))
	assert.Equal(t, Time(77), tt.Get(0x1014), "same word")
	assert.Zero(t, tt.Get(0x1018))
}

// TestTimeTableNarrowWriteRequiresWiden verifies the fatal precondition.
func TestTimeTableNarrowWriteRequiresWiden(t *testing.T) {
	s := newStore(t)
	tt := s.Get(s.New(Width64))
	assert.Panics(t, func() { tt.Set(0x1004, 1, Width32) })
}

// TestStoreWiden verifies word slots are duplicated into both halves.
func TestStoreWiden(t *testing.T) {
	s := newStore(t)
	h := s.New(Width64)
	tt := s.Get(h)
	tt.Set(0x1000, 5, Width64)
	tt.Set(0x1ff8, 9, Width64)

	s.Widen(h)
	tt = s.Get(h)
	require.Equal(t, Width32, tt.Width())
	assert.Len(t, tt.Words(), Slots32)
	assert.Equal(t, Time(5), tt.Get(0x1000))
	assert.Equal(t, Time(5), tt.Get(0x1004))
	assert.Equal(t, Time(9), tt.Get(0x1ff8))
	assert.Equal(t, Time(9), tt.Get(0x1ffc))

	_, _, converts := s.Counters()
	assert.Equal(t, uint64(1), converts)

	// Idempotent on an already split table.
	s.Widen(h)
	_, _, converts = s.Counters()
	assert.Equal(t, uint64(1), converts)
}

// TestWidthMonotonicity verifies a narrow write after a split only touches its
// own half, and a wide write on a split table fills both halves.
func TestWidthMonotonicity(t *testing.T) {
	s := newStore(t)
	h := s.New(Width64)
	s.Get(h).Set(0x1008, 40, Width64)
	s.Widen(h)
	tt := s.Get(h)

	tt.Set(0x100c, 41, Width32)
	assert.Equal(t, Time(40), tt.Get(0x1008), "other half keeps wide value")
	assert.Equal(t, Time(41), tt.Get(0x100c))

	tt.Set(0x1008, 50, Width64)
	assert.Equal(t, Time(50), tt.Get(0x1008))
	assert.Equal(t, Time(50), tt.Get(0x100c))
}

// TestTimeTableClean verifies Clean zeroes the payload.
func TestTimeTableClean(t *testing.T) {
	s := newStore(t)
	tt := s.Get(s.New(Width32))
	tt.Set(0x1004, 3, Width32)
	tt.Clean()
	assert.Zero(t, tt.Get(0x1004))
}

// TestStoreAccounting verifies live counts and payload bytes.
func TestStoreAccounting(t *testing.T) {
	s := newStore(t)
	a := s.New(Width64)
	b := s.New(Width32)
	assert.Equal(t, 2, s.Live())
	assert.Equal(t, (Slots64+Slots32)*8, s.Bytes())

	s.Free(a)
	s.Free(b)
	assert.Equal(t, 0, s.Live())
	assert.Equal(t, 0, s.Bytes())
	allocs, frees, _ := s.Counters()
	assert.Equal(t, uint64(2), allocs)
	assert.Equal(t, uint64(2), frees)
	assert.Panics(t, func() { s.Get(a) })
}

// TestHandleIsNil verifies the zero handle is nil and allocated ones are not.
func TestHandleIsNil(t *testing.T) {
	var h Handle
	assert.True(t, h.IsNil())

	s := newStore(t)
	h = s.New(Width64)
	assert.False(t, h.IsNil())
	s.Free(h)
}

// TestStoreRecycledZeroed verifies a recycled table never leaks old timestamps.
func TestStoreRecycledZeroed(t *testing.T) {
	s := newStore(t)
	h := s.New(Width64)
	s.Get(h).Set(0x1000, 99, Width64)
	s.Free(h)

	h2 := s.New(Width64)
	assert.Zero(t, s.Get(h2).Get(0x1000))
}

// BenchmarkTimeTableSet measures the hot write path.
func BenchmarkTimeTableSet(b *testing.B) {
	s := NewStore(0)
	defer s.Close()
	tt := s.Get(s.New(Width64))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tt.Set(uint64(i)<<3, uint64(i), Width64)
	}
}
