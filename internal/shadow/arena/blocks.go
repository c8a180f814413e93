package arena

import "fmt"

// blocksPerRegion is how many blocks of one size class share a backing region.
const blocksPerRegion = 64

// Blocks is a size-classed pool of zeroed []uint64 payload blocks.
//
// Each size class carves its blocks out of large regions obtained from
// mapRegion. Blocks are never returned to the OS individually; Close releases
// every region at once.
type Blocks struct {
	classes    []int
	free       [][][]uint64 // per class
	regions    [][]byte
	maxRegions int
	inUse      int
	bytesInUse int
}

// NewBlocks creates a pool serving blocks of exactly the given sizes (in words).
// maxRegions bounds the number of backing regions (0 = no limit).
func NewBlocks(maxRegions int, sizes ...int) *Blocks {
	return &Blocks{
		classes:    append([]int(nil), sizes...),
		free:       make([][][]uint64, len(sizes)),
		maxRegions: maxRegions,
	}
}

// Alloc returns a zeroed block of exactly n words.
func (b *Blocks) Alloc(n int) ([]uint64, error) {
	c := b.class(n)
	if c < 0 {
		return nil, fmt.Errorf("arena: no size class for %d words", n)
	}
	if len(b.free[c]) == 0 {
		if err := b.grow(c); err != nil {
			return nil, err
		}
	}
	last := len(b.free[c]) - 1
	blk := b.free[c][last]
	b.free[c] = b.free[c][:last]
	b.inUse++
	b.bytesInUse += n * 8
	return blk, nil
}

// MustAlloc is Alloc that panics on failure.
func (b *Blocks) MustAlloc(n int) []uint64 {
	blk, err := b.Alloc(n)
	if err != nil {
		panic(err)
	}
	return blk
}

// Free zeroes blk and returns it to its size class.
func (b *Blocks) Free(blk []uint64) {
	c := b.class(len(blk))
	if c < 0 {
		panic(fmt.Errorf("arena: freeing foreign block of %d words", len(blk)))
	}
	clear(blk)
	b.free[c] = append(b.free[c], blk)
	b.inUse--
	b.bytesInUse -= len(blk) * 8
}

// InUse returns the number of outstanding blocks.
func (b *Blocks) InUse() int { return b.inUse }

// BytesInUse returns the payload bytes held by outstanding blocks.
func (b *Blocks) BytesInUse() int { return b.bytesInUse }

// Regions returns the number of backing regions mapped so far.
func (b *Blocks) Regions() int { return len(b.regions) }

// Close releases every backing region. Blocks handed out earlier must not be
// used afterwards.
func (b *Blocks) Close() error {
	var first error
	for _, r := range b.regions {
		if err := unmapRegion(r); err != nil && first == nil {
			first = err
		}
	}
	b.regions = nil
	for i := range b.free {
		b.free[i] = nil
	}
	b.inUse, b.bytesInUse = 0, 0
	return first
}

func (b *Blocks) class(n int) int {
	for i, sz := range b.classes {
		if sz == n {
			return i
		}
	}
	return -1
}

func (b *Blocks) grow(c int) error {
	if b.maxRegions > 0 && len(b.regions) >= b.maxRegions {
		return fmt.Errorf("%w: %d regions mapped", ErrPoolExhausted, len(b.regions))
	}
	words := b.classes[c]
	raw, err := mapRegion(words * 8 * blocksPerRegion)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	}
	b.regions = append(b.regions, raw)
	all := wordsOf(raw)
	for i := blocksPerRegion - 1; i >= 0; i-- {
		b.free[c] = append(b.free[c], all[i*words:(i+1)*words:(i+1)*words])
	}
	return nil
}
