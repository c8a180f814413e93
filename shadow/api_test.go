package shadow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryVersionsCopy verifies Versions does not alias internal state.
func TestMemoryVersionsCopy(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	defer m.Close()

	m.Enter(0)
	v := m.Versions()
	m.Bump(0)
	assert.Equal(t, []LevelVersion{1}, v)
	assert.Equal(t, []LevelVersion{2}, m.Versions())
	assert.Equal(t, 1, m.Depth())
}

// TestMemoryCollect verifies Collect frees inner levels once their region
// restarts.
func TestMemoryCollect(t *testing.T) {
	m, err := New(OptCacheLines(0))
	require.NoError(t, err)
	defer m.Close()

	m.Enter(0)
	m.Enter(1)
	m.Store(0x1000, []Time{3, 4})
	m.Enter(1)
	assert.Equal(t, 1, m.Collect(MaxLevel))
	assert.Equal(t, []Time{3, 0}, m.Load(0x1000, 2))
	assert.Equal(t, 1, m.Stats().TimeTables)
}

// TestMemoryLevelRange verifies that loading more levels than versions
// panics with ErrLevelRange.
func TestMemoryLevelRange(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	defer m.Close()

	m.Enter(0)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrLevelRange))
	}()
	m.Load(0, 2)
}

// TestGetInfo verifies the runtime description.
func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, 64, info.MaxLevel)
	assert.Equal(t, 4096, info.SegmentBytes)
}
