// Package shadow provides the public API of the critical path profiler's
// shadow memory.
//
// Shadow memory maps every address of the profiled program to a tag vector:
// one logical timestamp per active profiling level. A level is one nesting
// depth of the dynamic region tree (a loop, a function, a task). When a
// region restarts its level's version is bumped and every timestamp stored at
// that level under the old version reads back as zero from then on.
//
// # Quick Start
//
//	m, err := shadow.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	m.Enter(0)                          // outer loop iteration
//	m.Enter(1)                          // inner loop iteration
//	m.Store(addr, []shadow.Time{5, 7})  // addr was written at times 5 and 7
//	t := m.Load(addr, 2)                // [5 7]
//	m.Enter(1)                          // next inner iteration
//	t = m.Load(addr, 2)                 // [5 0]
//
// # API Overview
//
//   - Construction and teardown: [New], [Memory.Close]
//   - Version vector: [Memory.Enter], [Memory.Bump], [Memory.Versions]
//   - Accesses under the current vector: [Memory.Load], [Memory.Store] and
//     their 4-byte forms [Memory.Load32], [Memory.Store32]
//   - Accesses under an explicit vector: [Memory.Get], [Memory.Set]
//   - Maintenance: [Memory.Collect], [Memory.Flush], [Memory.Stats]
//
// # Memory layout
//
// Addresses are split three ways. The high 32 bits pick an entry of a small
// sparse table, bits 12..31 pick a segment slot, and the low 12 bits pick a
// word (or half-word) inside a 4 KiB TimeTable. Each segment slot holds one
// LevelTable: a TimeTable per level, stamped with the version it was written
// under. A direct-mapped write-back cache of tag vectors sits in front.
//
// Idle LevelTables can be compressed (see [OptCompression]); a bounded active
// set with second-chance eviction decides which ones stay expanded.
//
// # Configuration
//
// Every option also reads a SHADOWMEM_* environment variable, so a profiler
// embedding this package can be tuned without a rebuild:
//
//	SHADOWMEM_CACHELINES   tag vector cache lines, power of two, 0 bypasses
//	SHADOWMEM_CACHEDEPTH   initial levels per cache line
//	SHADOWMEM_COMPRESS     compress idle level tables
//	SHADOWMEM_ACTIVESET    expanded level tables kept with compression on
//	SHADOWMEM_GCPERIOD     live TimeTables between garbage collections
//	SHADOWMEM_MAXREGIONS   cap on TimeTable pool regions, 0 for none
//
// # Thread Safety
//
// A Memory is NOT safe for concurrent use. Profilers keep one per thread.
package shadow
