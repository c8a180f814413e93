package engine

import (
	"fmt"
	"strings"

	"github.com/kolkov/critpath/internal/shadow/activeset"
	"github.com/kolkov/critpath/internal/shadow/leveltable"
	"github.com/kolkov/critpath/internal/shadow/tvcache"
)

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	// Reads and Writes count Get and Set calls with a positive size.
	Reads  uint64
	Writes uint64

	// GCRuns counts garbage collection sweeps; GCFreedLevels the levels they
	// released.
	GCRuns        uint64
	GCFreedLevels uint64
	// NextGC is the live TimeTable count that triggers the next sweep.
	NextGC uint64

	// TimeTables is the number of live TimeTables and TimeTableBytes their
	// payload size.
	TimeTables     int
	TimeTableBytes int
	// TimeTableAllocs, TimeTableFrees and TimeTableConverts are lifetime
	// counts; a convert is a Width64 table split to Width32.
	TimeTableAllocs   uint64
	TimeTableFrees    uint64
	TimeTableConverts uint64

	// Segments is the number of SparseTable entries.
	Segments int
	// LevelTables is the number of live LevelTables.
	LevelTables int

	Compression leveltable.Stats
	ActiveSet   activeset.Stats
	Cache       tvcache.Stats
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	allocs, frees, converts := e.store.Counters()
	s := Stats{
		Reads:             e.reads,
		Writes:            e.writes,
		GCRuns:            e.gcRuns,
		GCFreedLevels:     e.gcFreed,
		NextGC:            e.nextGC,
		TimeTables:        e.store.Live(),
		TimeTableBytes:    e.store.Bytes(),
		TimeTableAllocs:   allocs,
		TimeTableFrees:    frees,
		TimeTableConverts: converts,
		Segments:          e.sparse.Len(),
		LevelTables:       e.pool.Live(),
		Compression:       e.pool.Stats(),
		Cache:             e.cache.Stats(),
	}
	if e.active != nil {
		s.ActiveSet = e.active.Stats()
	}
	return s
}

// HitRate returns the fraction of cache lookups that hit, or 0 with no lookups.
func (s Stats) HitRate() float64 {
	c := s.Cache
	hits := c.ReadHits + c.WriteHits
	total := hits + c.ReadMisses + c.WriteMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// CompressionRatio returns codec output bytes over input bytes, or 0 if
// nothing was compressed.
func (s Stats) CompressionRatio() float64 {
	if s.Compression.CodecSrcBytes == 0 {
		return 0
	}
	return float64(s.Compression.CodecDestBytes) / float64(s.Compression.CodecSrcBytes)
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "accesses:     %d reads, %d writes\n", s.Reads, s.Writes)
	fmt.Fprintf(&b, "cache:        %d lines x %d levels, hit rate %.2f%%, %d evictions, %d resizes\n",
		s.Cache.Lines, s.Cache.Depth, 100*s.HitRate(), s.Cache.Evictions, s.Cache.Resizes)
	fmt.Fprintf(&b, "timetables:   %d live (%d bytes), %d alloc, %d free, %d split\n",
		s.TimeTables, s.TimeTableBytes, s.TimeTableAllocs, s.TimeTableFrees, s.TimeTableConverts)
	fmt.Fprintf(&b, "leveltables:  %d live in %d segments\n", s.LevelTables, s.Segments)
	fmt.Fprintf(&b, "gc:           %d runs, %d levels freed, next at %d\n", s.GCRuns, s.GCFreedLevels, s.NextGC)
	if s.ActiveSet.Capacity > 0 {
		fmt.Fprintf(&b, "active set:   %d/%d, %d evictions, net %d bytes\n",
			s.ActiveSet.Active, s.ActiveSet.Capacity, s.ActiveSet.Evictions, s.ActiveSet.NetBytes)
		fmt.Fprintf(&b, "compression:  %d/%d cycles, ratio %.3f, %d bytes held\n",
			s.Compression.Compressions, s.Compression.Decompressions,
			s.CompressionRatio(), s.Compression.CompressedBytes)
	}
	return b.String()
}
