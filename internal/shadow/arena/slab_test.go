package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	a, b uint64
}

// TestSlabAllocGet verifies handles are non-nil and objects start zeroed.
func TestSlabAllocGet(t *testing.T) {
	s := NewSlab[node](0)

	h, p, err := s.Alloc()
	require.NoError(t, err)
	assert.False(t, h.IsNil())
	assert.Equal(t, node{}, *p)

	p.a = 42
	assert.Equal(t, uint64(42), s.Get(h).a)
	assert.Equal(t, 1, s.Len())
}

// TestSlabFreeRecycles verifies LIFO reuse and zeroing of freed objects.
func TestSlabFreeRecycles(t *testing.T) {
	s := NewSlab[node](0)

	h1, p1 := s.MustAlloc()
	p1.a, p1.b = 1, 2
	s.Free(h1)
	assert.Equal(t, 0, s.Len())

	h2, p2 := s.MustAlloc()
	assert.Equal(t, h1, h2)
	assert.Equal(t, node{}, *p2)
}

// TestSlabStablePointers verifies growth does not move live objects.
func TestSlabStablePointers(t *testing.T) {
	s := NewSlab[node](0)

	h, p := s.MustAlloc()
	p.a = 7
	for i := 0; i < 3*slabChunk; i++ {
		s.MustAlloc()
	}
	assert.Same(t, p, s.Get(h))
	assert.Equal(t, uint64(7), p.a)
	assert.GreaterOrEqual(t, s.Cap(), 3*slabChunk+1)
}

// TestSlabChunkSize verifies a custom chunk size sets the growth step.
func TestSlabChunkSize(t *testing.T) {
	s := NewSlabChunk[node](4, 0)
	assert.Equal(t, 0, s.Cap())

	h, p := s.MustAlloc()
	p.a = 1
	assert.Equal(t, 4, s.Cap())
	for i := 0; i < 4; i++ {
		s.MustAlloc()
	}
	assert.Equal(t, 8, s.Cap())
	assert.Equal(t, uint64(1), s.Get(h).a)
}

// TestSlabLimit verifies exhaustion is reported, not masked.
func TestSlabLimit(t *testing.T) {
	s := NewSlab[node](2)
	s.MustAlloc()
	s.MustAlloc()

	_, _, err := s.Alloc()
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.Panics(t, func() { s.MustAlloc() })
}

// TestSlabBadHandle verifies nil and freed handles are rejected.
func TestSlabBadHandle(t *testing.T) {
	s := NewSlab[node](0)
	assert.Panics(t, func() { s.Get(0) })

	h, _ := s.MustAlloc()
	s.Free(h)
	assert.Panics(t, func() { s.Get(h) })
	assert.Panics(t, func() { s.Get(h + 10) })
}

// BenchmarkSlabAllocFree measures the steady-state recycle path.
func BenchmarkSlabAllocFree(b *testing.B) {
	s := NewSlab[node](0)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h, _ := s.MustAlloc()
		s.Free(h)
	}
}
