package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBlocksAllocZeroed verifies size classes and zeroed payloads.
func TestBlocksAllocZeroed(t *testing.T) {
	b := NewBlocks(0, 512, 1024)
	defer b.Close()

	small, err := b.Alloc(512)
	require.NoError(t, err)
	assert.Len(t, small, 512)
	assert.Equal(t, 512, cap(small))

	big := b.MustAlloc(1024)
	assert.Len(t, big, 1024)
	for i, w := range big {
		require.Zero(t, w, "word %d", i)
	}

	assert.Equal(t, 2, b.InUse())
	assert.Equal(t, (512+1024)*8, b.BytesInUse())
	assert.Equal(t, 2, b.Regions())
}

// TestBlocksFreeClears verifies recycled blocks come back zeroed.
func TestBlocksFreeClears(t *testing.T) {
	b := NewBlocks(0, 512)
	defer b.Close()

	blk := b.MustAlloc(512)
	for i := range blk {
		blk[i] = uint64(i + 1)
	}
	b.Free(blk)
	assert.Equal(t, 0, b.InUse())

	again := b.MustAlloc(512)
	assert.Equal(t, &blk[0], &again[0])
	assert.Zero(t, again[0])
	assert.Zero(t, again[511])
}

// TestBlocksIsolation verifies neighbouring blocks in a region do not overlap.
func TestBlocksIsolation(t *testing.T) {
	b := NewBlocks(0, 512)
	defer b.Close()

	x := b.MustAlloc(512)
	y := b.MustAlloc(512)
	assert.Equal(t, 512, cap(x))
	for i := range x {
		x[i] = 1
	}
	for i := range y {
		require.Zero(t, y[i])
	}
}

// TestBlocksUnknownClass verifies sizes outside the configured classes fail.
func TestBlocksUnknownClass(t *testing.T) {
	b := NewBlocks(0, 512)
	defer b.Close()

	_, err := b.Alloc(100)
	assert.Error(t, err)
	assert.Panics(t, func() { b.Free(make([]uint64, 100)) })
}

// TestBlocksRegionLimit verifies exhaustion once the region limit is reached.
func TestBlocksRegionLimit(t *testing.T) {
	b := NewBlocks(1, 512)
	defer b.Close()

	for i := 0; i < blocksPerRegion; i++ {
		b.MustAlloc(512)
	}
	_, err := b.Alloc(512)
	require.ErrorIs(t, err, ErrPoolExhausted)
}

// BenchmarkBlocksAllocFree measures block recycling including the clear.
func BenchmarkBlocksAllocFree(b *testing.B) {
	p := NewBlocks(0, 1024)
	defer p.Close()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Free(p.MustAlloc(1024))
	}
}
