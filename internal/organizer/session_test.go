package organizer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/database"
)

func TestCreateSession(t *testing.T) {
	m := NewSessionManager(testDB(t))

	session, err := m.CreateSession("/src", "/dest", "cfg-hash")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, database.SessionPending, session.Status)
	assert.Equal(t, "cfg-hash", session.ConfigHash)

	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestCreateSessionRefusesSecondActivePerDestination(t *testing.T) {
	m := NewSessionManager(testDB(t))

	first, err := m.CreateSession("/src", "/dest", "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(first.ID, database.SessionRunning, ""))

	_, err = m.CreateSession("/other-src", "/dest", "h")
	assert.Error(t, err)

	// A different destination is unaffected.
	_, err = m.CreateSession("/src", "/dest2", "h")
	assert.NoError(t, err)

	// Once the first run ends, the destination is free again.
	require.NoError(t, m.UpdateStatus(first.ID, database.SessionCompleted, ""))
	_, err = m.CreateSession("/src", "/dest", "h")
	assert.NoError(t, err)
}

func TestUpdateStatusStampsEndTimeOnTerminal(t *testing.T) {
	m := NewSessionManager(testDB(t))
	session, err := m.CreateSession("/src", "/dest", "h")
	require.NoError(t, err)

	require.NoError(t, m.UpdateStatus(session.ID, database.SessionRunning, ""))
	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, m.UpdateStatus(session.ID, database.SessionError, "disk on fire"))
	got, err = m.Get(session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, "disk on fire", got.ErrorMessage)
}

func TestFindResumable(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	src := t.TempDir()
	dest := t.TempDir()

	got, err := m.FindResumable()
	require.NoError(t, err)
	assert.Nil(t, got)

	older, err := m.CreateSession(src, dest, "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(older.ID, database.SessionPaused, ""))

	// Separate the start times so ordering is deterministic.
	require.NoError(t, db.Model(&database.Session{}).Where("id = ?", older.ID).
		Update("started_at", time.Now().Add(-time.Hour)).Error)

	newer, err := m.CreateSession(src, t.TempDir(), "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(newer.ID, database.SessionPaused, ""))

	got, err = m.FindResumable()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
}

func TestFindResumableRejectsVanishedSource(t *testing.T) {
	m := NewSessionManager(testDB(t))
	src := filepath.Join(t.TempDir(), "source")
	require.NoError(t, os.MkdirAll(src, 0o755))

	session, err := m.CreateSession(src, t.TempDir(), "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(session.ID, database.SessionPaused, ""))

	require.NoError(t, os.RemoveAll(src))

	_, err = m.FindResumable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not resumable")
}

func TestRecoverOrphaned(t *testing.T) {
	m := NewSessionManager(testDB(t))

	crashed, err := m.CreateSession("/src", "/dest", "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(crashed.ID, database.SessionRunning, ""))

	finished, err := m.CreateSession("/src", "/dest2", "h")
	require.NoError(t, err)
	require.NoError(t, m.UpdateStatus(finished.ID, database.SessionCompleted, ""))

	n, err := m.RecoverOrphaned()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(crashed.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SessionPaused, got.Status)

	got, err = m.Get(finished.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SessionCompleted, got.Status)
}

func TestStats(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	session, err := m.CreateSession("/src", "/dest", "h")
	require.NoError(t, err)

	addRecord := func(status string, i int) {
		record := database.FileRecord{
			SessionID:   session.ID,
			SourcePath:  filepath.Join("/src", status, string(rune('a'+i))),
			Status:      status,
			ProcessedAt: time.Now(),
		}
		require.NoError(t, db.Create(&record).Error)
	}
	for i := 0; i < 3; i++ {
		addRecord(database.FileCompleted, i)
	}
	addRecord(database.FileSkipped, 0)
	addRecord(database.FileDuplicate, 0)
	addRecord(database.FileDuplicate, 1)
	addRecord(database.FileError, 0)

	stats, err := m.Stats(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalFiles)
	assert.Equal(t, int64(3), stats.Completed)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(2), stats.Duplicates)
	assert.Equal(t, int64(1), stats.Errors)
}

// undoFixture lays a small organized tree and its file records on disk.
func undoFixture(t *testing.T, db *gorm.DB, m *SessionManager) (*database.Session, []string) {
	t.Helper()
	dest := t.TempDir()
	session, err := m.CreateSession("/src", dest, "h")
	require.NoError(t, err)

	placed := []string{
		filepath.Join(dest, "Photos", "2023", "2023-05", "a.jpg"),
		filepath.Join(dest, "Photos", "2023", "2023-05", "b.jpg"),
		filepath.Join(dest, "Videos", "2022", "c.mp4"),
	}
	for i, path := range placed {
		writeTestFile(t, path, "content")
		dst := path
		record := database.FileRecord{
			SessionID:       session.ID,
			SourcePath:      filepath.Join("/src", filepath.Base(path)),
			DestinationPath: &dst,
			Status:          database.FileCompleted,
			Size:            int64(i),
			ProcessedAt:     time.Now(),
		}
		require.NoError(t, db.Create(&record).Error)
	}
	return session, placed
}

func TestUndoDryRun(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	session, placed := undoFixture(t, db, m)

	result, err := m.Undo(session.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesDeleted)
	assert.Zero(t, result.FilesFailed)

	// Nothing was touched.
	for _, path := range placed {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, database.SessionUndone, got.Status)
}

func TestUndoDeletesFilesAndPrunesDirs(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	session, placed := undoFixture(t, db, m)

	// An unrelated file keeps its directory alive.
	survivor := filepath.Join(session.DestinationPath, "Videos", "2022", "mine.mp4")
	writeTestFile(t, survivor, "not ours")

	result, err := m.Undo(session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesDeleted)
	assert.Zero(t, result.FilesFailed)

	for _, path := range placed {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}

	// Emptied chain Photos/2023/2023-05 is pruned up to the root.
	_, err = os.Stat(filepath.Join(session.DestinationPath, "Photos"))
	assert.True(t, os.IsNotExist(err))

	// The occupied directory survives.
	_, err = os.Stat(survivor)
	assert.NoError(t, err)

	got, err := m.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SessionUndone, got.Status)
}

func TestUndoIsIdempotent(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	session, _ := undoFixture(t, db, m)

	first, err := m.Undo(session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, first.FilesDeleted)

	second, err := m.Undo(session.ID, false)
	require.NoError(t, err)
	assert.Zero(t, second.FilesDeleted)
	assert.Zero(t, second.FilesFailed)
}

func TestUndoSkipsDuplicateRecords(t *testing.T) {
	db := testDB(t)
	m := NewSessionManager(db)
	session, _ := undoFixture(t, db, m)

	// Duplicate rows carry no destination and must not affect undo.
	originalID := uint(1)
	require.NoError(t, db.Create(&database.FileRecord{
		SessionID:     session.ID,
		SourcePath:    "/src/dup.jpg",
		Status:        database.FileDuplicate,
		DuplicateOfID: &originalID,
		ProcessedAt:   time.Now(),
	}).Error)

	result, err := m.Undo(session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesDeleted)
}
