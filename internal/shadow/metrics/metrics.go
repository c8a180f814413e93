// Package metrics exports shadow memory counters to Prometheus.
//
// The engine is single-threaded and keeps plain counters, so the exporter is
// a pull-side Collector: every scrape takes one Stats snapshot through the
// supplied function and turns it into const metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/critpath/internal/shadow/engine"
)

const namespace = "shadowmem"

type metric struct {
	desc  *prometheus.Desc
	typ   prometheus.ValueType
	value func(s *engine.Stats) float64
}

// Collector implements prometheus.Collector over an engine.Stats source.
type Collector struct {
	snapshot func() engine.Stats
	metrics  []metric
}

func newMetric(subsystem, name, help string, typ prometheus.ValueType, value func(s *engine.Stats) float64) metric {
	return metric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil),
		typ:   typ,
		value: value,
	}
}

// NewCollector returns a Collector reading from snapshot. The function is
// called once per scrape and must be safe to call from the scrape goroutine.
func NewCollector(snapshot func() engine.Stats) *Collector {
	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue
	return &Collector{
		snapshot: snapshot,
		metrics: []metric{
			newMetric("", "reads_total", "Shadow memory Get calls.", counter,
				func(s *engine.Stats) float64 { return float64(s.Reads) }),
			newMetric("", "writes_total", "Shadow memory Set calls.", counter,
				func(s *engine.Stats) float64 { return float64(s.Writes) }),

			newMetric("cache", "read_hits_total", "Timestamp cache read hits.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.ReadHits) }),
			newMetric("cache", "read_misses_total", "Timestamp cache read misses.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.ReadMisses) }),
			newMetric("cache", "write_hits_total", "Timestamp cache write hits.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.WriteHits) }),
			newMetric("cache", "write_misses_total", "Timestamp cache write misses.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.WriteMisses) }),
			newMetric("cache", "evictions_total", "Cache lines evicted.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.Evictions) }),
			newMetric("cache", "resizes_total", "Cache depth increases.", counter,
				func(s *engine.Stats) float64 { return float64(s.Cache.Resizes) }),
			newMetric("cache", "depth", "Levels held per cache line.", gauge,
				func(s *engine.Stats) float64 { return float64(s.Cache.Depth) }),

			newMetric("timetable", "live", "Live TimeTables.", gauge,
				func(s *engine.Stats) float64 { return float64(s.TimeTables) }),
			newMetric("timetable", "bytes", "Bytes held by live TimeTables.", gauge,
				func(s *engine.Stats) float64 { return float64(s.TimeTableBytes) }),
			newMetric("timetable", "allocs_total", "TimeTable allocations.", counter,
				func(s *engine.Stats) float64 { return float64(s.TimeTableAllocs) }),
			newMetric("timetable", "frees_total", "TimeTable releases.", counter,
				func(s *engine.Stats) float64 { return float64(s.TimeTableFrees) }),
			newMetric("timetable", "splits_total", "TimeTables widened to 32-bit slots.", counter,
				func(s *engine.Stats) float64 { return float64(s.TimeTableConverts) }),

			newMetric("", "leveltables", "Live LevelTables.", gauge,
				func(s *engine.Stats) float64 { return float64(s.LevelTables) }),
			newMetric("", "segments", "Populated high-address segments.", gauge,
				func(s *engine.Stats) float64 { return float64(s.Segments) }),

			newMetric("gc", "runs_total", "Garbage collection sweeps.", counter,
				func(s *engine.Stats) float64 { return float64(s.GCRuns) }),
			newMetric("gc", "freed_levels_total", "Levels released by garbage collection.", counter,
				func(s *engine.Stats) float64 { return float64(s.GCFreedLevels) }),

			newMetric("compression", "compressions_total", "LevelTables compressed.", counter,
				func(s *engine.Stats) float64 { return float64(s.Compression.Compressions) }),
			newMetric("compression", "decompressions_total", "LevelTables restored.", counter,
				func(s *engine.Stats) float64 { return float64(s.Compression.Decompressions) }),
			newMetric("compression", "held_bytes", "Bytes held in compressed blobs.", gauge,
				func(s *engine.Stats) float64 { return float64(s.Compression.CompressedBytes) }),
			newMetric("compression", "ratio", "Codec output bytes over input bytes.", gauge,
				func(s *engine.Stats) float64 { return s.CompressionRatio() }),
			newMetric("activeset", "size", "LevelTables in the active set.", gauge,
				func(s *engine.Stats) float64 { return float64(s.ActiveSet.Active) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.typ, m.value(&s))
	}
}
