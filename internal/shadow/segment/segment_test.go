package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/critpath/internal/shadow/leveltable"
)

// TestAddressDecomposition verifies the documented shift/mask constants.
func TestAddressDecomposition(t *testing.T) {
	addr := uint64(0x0000_7fff_1234_5678)
	assert.Equal(t, uint32(0x7fff), High(addr))
	assert.Equal(t, 0x12345, Index(addr))
	assert.Equal(t, 1<<20, Slots)

	assert.Equal(t, Index(0x1000), Index(0x1fff), "one slot per 4 KiB")
	assert.NotEqual(t, Index(0x1000), Index(0x2000))
}

// TestMemorySegmentSetGet verifies lazy pages and population count.
func TestMemorySegmentSetGet(t *testing.T) {
	st := NewSparseTable(nil)
	ms := st.Element(0)
	assert.True(t, ms.LevelTableAt(12345).IsNil())

	ms.SetLevelTableAt(12345, 7)
	ms.SetLevelTableAt(Slots-1, 9)
	assert.Equal(t, leveltable.Handle(7), ms.LevelTableAt(12345))
	assert.Equal(t, leveltable.Handle(9), ms.LevelTableAt(Slots-1))
	assert.Equal(t, 2, ms.Len())

	ms.SetLevelTableAt(12345, 0)
	assert.Equal(t, 1, ms.Len())

	var seen []int
	ms.ForEach(func(i int, _ leveltable.Handle) { seen = append(seen, i) })
	assert.Equal(t, []int{Slots - 1}, seen)
}

// TestMemorySegmentPagesFromSlab verifies handle pages are drawn from the
// table's slab, one per touched 4096-slot range, shared across segments.
func TestMemorySegmentPagesFromSlab(t *testing.T) {
	st := NewSparseTable(nil)
	a := st.Element(0x1_0000_0000)
	b := st.Element(0x2_0000_0000)

	a.SetLevelTableAt(0, 0)
	assert.Zero(t, st.Pages(), "clearing an absent slot allocates nothing")

	a.SetLevelTableAt(1, 3)
	a.SetLevelTableAt(2, 4)
	assert.Equal(t, 1, st.Pages())

	b.SetLevelTableAt(pageSlots, 5)
	assert.Equal(t, 2, st.Pages())
	assert.True(t, b.LevelTableAt(0).IsNil())
	assert.Equal(t, leveltable.Handle(5), b.LevelTableAt(pageSlots))
	assert.Equal(t, leveltable.Handle(4), a.LevelTableAt(2))
}

// TestSparseTableElement verifies create-on-first-sight and reuse.
func TestSparseTableElement(t *testing.T) {
	var grown []uint32
	st := NewSparseTable(func(high uint32, _ int) { grown = append(grown, high) })

	a := st.Element(0x0000_0001_0000_1000)
	b := st.Element(0x0000_0001_ffff_ffff)
	c := st.Element(0x0000_7fff_0000_0000)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, []uint32{1, 0x7fff}, grown)
	assert.Same(t, c, st.Lookup(0x0000_7fff_0000_0008))
	assert.Nil(t, st.Lookup(0x0000_0002_0000_0000))
}

// TestSparseTableFull verifies overflow is fatal.
func TestSparseTableFull(t *testing.T) {
	st := NewSparseTable(nil)
	for i := 0; i < MaxEntries; i++ {
		st.Element(uint64(i) << HighShift)
	}
	require.Equal(t, MaxEntries, st.Len())

	assert.NotPanics(t, func() { st.Element(0) })
	assert.PanicsWithError(t,
		"segment: sparse table full: 32 entries, high 0x20",
		func() { st.Element(uint64(MaxEntries) << HighShift) })
}

// TestSparseTableForEach verifies the GC walk visits every table.
func TestSparseTableForEach(t *testing.T) {
	st := NewSparseTable(nil)
	st.Element(0x1000).SetLevelTableAt(Index(0x1000), 1)
	st.Element(0x2000).SetLevelTableAt(Index(0x2000), 2)
	st.Element(0x5_0000_3000).SetLevelTableAt(Index(0x3000), 3)

	var got []leveltable.Handle
	st.ForEach(func(h leveltable.Handle) { got = append(got, h) })
	assert.Equal(t, []leveltable.Handle{1, 2, 3}, got)
}
