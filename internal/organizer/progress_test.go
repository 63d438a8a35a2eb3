package organizer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressCounters(t *testing.T) {
	p := &Progress{
		FilesScanned:   10,
		FilesProcessed: 4,
		FilesSkipped:   2,
		FilesDuplicate: 1,
		FilesError:     1,
	}
	assert.Equal(t, int64(8), p.Completed())
	assert.Equal(t, 80.0, p.Percent())

	empty := &Progress{}
	assert.Equal(t, 0.0, empty.Percent())
}

func TestProgressCloneIsIndependent(t *testing.T) {
	p := &Progress{
		FilesProcessed: 1,
		CategoryCounts: map[string]int64{"Photos/2023": 1},
	}
	snap := p.clone()

	p.FilesProcessed = 2
	p.CategoryCounts["Photos/2023"] = 5

	assert.Equal(t, int64(1), snap.FilesProcessed)
	assert.Equal(t, int64(1), snap.CategoryCounts["Photos/2023"])
}

func TestProgressSnapshotRoundTrip(t *testing.T) {
	dest := t.TempDir()

	p := &Progress{
		State:          StateProcessing,
		SessionID:      "session-1",
		StartTime:      time.Now().Truncate(time.Second),
		FilesScanned:   20,
		FilesProcessed: 7,
		FilesPending:   13,
		CategoryCounts: map[string]int64{"Photos/2023/2023-05": 7},
	}
	require.NoError(t, SaveProgress(dest, p))

	got, err := LoadProgress(dest)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StateProcessing, got.State)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, int64(7), got.FilesProcessed)
	assert.Equal(t, int64(7), got.CategoryCounts["Photos/2023/2023-05"])

	// Overwrite replaces, never appends.
	p.FilesProcessed = 8
	require.NoError(t, SaveProgress(dest, p))
	got, err = LoadProgress(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.FilesProcessed)

	// No temp file lingers next to the snapshot.
	entries, err := os.ReadDir(filepath.Join(dest, ".mediasort"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadProgressAbsent(t *testing.T) {
	got, err := LoadProgress(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearProgress(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, SaveProgress(dest, &Progress{State: StateProcessing}))

	ClearProgress(dest)

	got, err := LoadProgress(dest)
	require.NoError(t, err)
	assert.Nil(t, got)
}
