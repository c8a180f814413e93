// Package arena provides the fixed-size allocators that back shadow memory.
//
// Every shadow-memory structure is allocated from a pool dedicated to its kind:
// TimeTable payload blocks, TimeTable headers, LevelTables. Pools hand out typed
// index handles instead of pointers. A handle is a small integer that stays valid
// while the pool grows, and a freed handle can be detected instead of silently
// aliasing reused memory.
//
// # Components
//
// Slab: generic object pool for small fixed-layout structs (headers, tables).
// Storage is chunked so that growing the pool never moves live objects.
//
// Blocks: pool of zeroed []uint64 payload blocks in a fixed set of size classes.
// On unix the backing regions are anonymous private mappings obtained through
// golang.org/x/sys/unix, so multi-megabyte timestamp payloads live outside the
// Go heap and are not scanned by the garbage collector. Other platforms fall back
// to heap slices.
//
// # Thread Safety
//
// None. Pools belong to one shadow engine, which runs on one profiled thread.
package arena
