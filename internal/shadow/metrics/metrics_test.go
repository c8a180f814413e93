package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/critpath/internal/shadow/engine"
)

// TestCollectorExportsSnapshot verifies that counters come from the snapshot
// taken at scrape time.
func TestCollectorExportsSnapshot(t *testing.T) {
	var s engine.Stats
	c := NewCollector(func() engine.Stats { return s })

	s.Reads = 7
	s.Writes = 3
	s.TimeTables = 2

	expected := `
# HELP shadowmem_reads_total Shadow memory Get calls.
# TYPE shadowmem_reads_total counter
shadowmem_reads_total 7
# HELP shadowmem_writes_total Shadow memory Set calls.
# TYPE shadowmem_writes_total counter
shadowmem_writes_total 3
# HELP shadowmem_timetable_live Live TimeTables.
# TYPE shadowmem_timetable_live gauge
shadowmem_timetable_live 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"shadowmem_reads_total", "shadowmem_writes_total", "shadowmem_timetable_live")
	require.NoError(t, err)

	s.Reads = 8
	err = testutil.CollectAndCompare(c, strings.NewReader(strings.Replace(expected, "reads_total 7", "reads_total 8", 1)),
		"shadowmem_reads_total", "shadowmem_writes_total", "shadowmem_timetable_live")
	assert.NoError(t, err)
}

// TestCollectorAgainstEngine verifies the collector registers cleanly and
// reports live engine activity.
func TestCollectorAgainstEngine(t *testing.T) {
	e, err := engine.New(engine.OptCacheLines(16), engine.OptGCPeriod(0))
	require.NoError(t, err)
	defer e.Close()

	c := NewCollector(e.Stats)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	versions := []engine.Version{1, 1}
	e.Set(0x1000, 2, versions, []engine.Time{5, 6}, engine.Width64)
	e.Get(0x1000, 2, versions, engine.Width64)

	assert.Equal(t, len(c.metrics), testutil.CollectAndCount(c))

	expected := `
# HELP shadowmem_reads_total Shadow memory Get calls.
# TYPE shadowmem_reads_total counter
shadowmem_reads_total 1
# HELP shadowmem_cache_read_hits_total Timestamp cache read hits.
# TYPE shadowmem_cache_read_hits_total counter
shadowmem_cache_read_hits_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"shadowmem_reads_total", "shadowmem_cache_read_hits_total"))
}
