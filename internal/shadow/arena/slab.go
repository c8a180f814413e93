package arena

import "fmt"

// Handle identifies an object inside a Slab. The zero Handle is nil.
type Handle uint32

// IsNil reports whether h refers to no object.
func (h Handle) IsNil() bool { return h == 0 }

// slabChunk is the default number of objects per storage chunk.
const slabChunk = 1024

// Slab is a typed object pool addressed by Handle.
//
// Objects live in fixed-size chunks; a pointer returned by Get stays valid until
// the handle is freed. Freed objects are zeroed and recycled LIFO, which keeps
// recently touched memory hot.
type Slab[T any] struct {
	chunks [][]T
	live   []bool
	free   []Handle
	next   uint32 // next never-used index
	count  int
	limit  int // 0 = unbounded
	chunk  int
}

// NewSlab creates an empty slab holding at most limit live objects (0 = no limit).
func NewSlab[T any](limit int) *Slab[T] {
	return NewSlabChunk[T](slabChunk, limit)
}

// NewSlabChunk is NewSlab with chunk objects per storage chunk. Large objects
// want small chunks so the first allocation does not commit megabytes.
func NewSlabChunk[T any](chunk, limit int) *Slab[T] {
	if chunk < 1 {
		chunk = 1
	}
	return &Slab[T]{limit: limit, chunk: chunk}
}

// Alloc returns a handle to a zeroed object.
func (s *Slab[T]) Alloc() (Handle, *T, error) {
	if s.limit > 0 && s.count >= s.limit {
		return 0, nil, fmt.Errorf("%w: slab limit %d", ErrPoolExhausted, s.limit)
	}
	var h Handle
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		if s.next == ^uint32(0) {
			return 0, nil, fmt.Errorf("%w: handle space", ErrPoolExhausted)
		}
		idx := s.next
		s.next++
		if int(idx)/s.chunk >= len(s.chunks) {
			s.chunks = append(s.chunks, make([]T, s.chunk))
			s.live = append(s.live, make([]bool, s.chunk)...)
		}
		h = Handle(idx + 1)
	}
	s.live[h-1] = true
	s.count++
	return h, s.at(h), nil
}

// MustAlloc is Alloc that panics on exhaustion.
//
// Shadow memory has no fallback storage tier, so callers on the hot path use
// this form.
func (s *Slab[T]) MustAlloc() (Handle, *T) {
	h, p, err := s.Alloc()
	if err != nil {
		panic(err)
	}
	return h, p
}

// Get returns the object for h. It panics on a nil or freed handle.
func (s *Slab[T]) Get(h Handle) *T {
	if h == 0 || uint32(h) > s.next || !s.live[h-1] {
		panic(fmt.Errorf("%w: %d", ErrBadHandle, h))
	}
	return s.at(h)
}

// Free zeroes the object for h and returns it to the pool.
func (s *Slab[T]) Free(h Handle) {
	p := s.Get(h)
	var zero T
	*p = zero
	s.live[h-1] = false
	s.free = append(s.free, h)
	s.count--
}

// Len returns the number of live objects.
func (s *Slab[T]) Len() int { return s.count }

// Cap returns the number of objects the slab can hold without growing.
func (s *Slab[T]) Cap() int { return len(s.chunks) * s.chunk }

func (s *Slab[T]) at(h Handle) *T {
	idx := int(h) - 1
	return &s.chunks[idx/s.chunk][idx%s.chunk]
}
