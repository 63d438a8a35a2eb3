package organizer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/database"
)

func insertRecord(t *testing.T, db *gorm.DB, source, digest, ext string) uint {
	t.Helper()
	dest := "/dest/" + filepath.Base(source)
	record := database.FileRecord{
		SessionID:       "s1",
		SourcePath:      source,
		DestinationPath: &dest,
		Hash:            digest,
		Extension:       ext,
		Status:          database.FileCompleted,
		ProcessedAt:     time.Now(),
	}
	require.NoError(t, db.Create(&record).Error)
	return record.ID
}

func TestCheckDuplicateUnseenDigest(t *testing.T) {
	db := testDB(t)
	engine := NewDedupEngine(db, NewHasher(db))

	isDup, _, err := engine.CheckDuplicate("/src/a.jpg", "digest-1", ".jpg")
	require.NoError(t, err)
	assert.False(t, isDup)
}

func TestRegisterThenCheckDuplicate(t *testing.T) {
	db := testDB(t)
	engine := NewDedupEngine(db, NewHasher(db))

	originalID := insertRecord(t, db, "/src/a.jpg", "digest-1", ".jpg")
	gotOriginal, isOriginal, err := engine.RegisterFile("/src/a.jpg", "digest-1", ".jpg", originalID)
	require.NoError(t, err)
	assert.True(t, isOriginal)
	assert.Equal(t, originalID, gotOriginal)

	isDup, gotID, err := engine.CheckDuplicate("/src/b.jpg", "digest-1", ".jpg")
	require.NoError(t, err)
	assert.True(t, isDup)
	assert.Equal(t, originalID, gotID)
}

func TestDuplicateRequiresExactExtensionMatch(t *testing.T) {
	db := testDB(t)
	engine := NewDedupEngine(db, NewHasher(db))

	originalID := insertRecord(t, db, "/src/a.jpg", "digest-1", ".jpg")
	_, _, err := engine.RegisterFile("/src/a.jpg", "digest-1", ".jpg", originalID)
	require.NoError(t, err)

	// Identical bytes under a different extension are not duplicates.
	isDup, _, err := engine.CheckDuplicate("/src/a.png", "digest-1", ".png")
	require.NoError(t, err)
	assert.False(t, isDup)
}

func TestFirstWriterWinsAsOriginal(t *testing.T) {
	db := testDB(t)
	engine := NewDedupEngine(db, NewHasher(db))

	firstID := insertRecord(t, db, "/src/a.jpg", "digest-1", ".jpg")
	_, isOriginal, err := engine.RegisterFile("/src/a.jpg", "digest-1", ".jpg", firstID)
	require.NoError(t, err)
	require.True(t, isOriginal)

	// A racing second writer learns it lost and who won.
	secondID := insertRecord(t, db, "/src/b.jpg", "digest-1", ".jpg")
	gotOriginal, isOriginal, err := engine.RegisterFile("/src/b.jpg", "digest-1", ".jpg", secondID)
	require.NoError(t, err)
	assert.False(t, isOriginal)
	assert.Equal(t, firstID, gotOriginal)

	_, _, err = engine.RegisterFile("/src/c.jpg", "digest-1", ".jpg", secondID)
	require.NoError(t, err)

	var group database.DuplicateGroup
	require.NoError(t, db.First(&group, "hash = ? AND extension = ?", "digest-1", ".jpg").Error)
	assert.Equal(t, firstID, group.OriginalFileID)
	assert.Equal(t, int64(2), group.DuplicateCount)
	assert.False(t, group.LastSeenAt.Before(group.FirstSeenAt))
}

func TestFindDuplicatesInSet(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	c := filepath.Join(dir, "c.jpg")
	writeTestFile(t, a, "same bytes")
	writeTestFile(t, b, "same bytes")
	writeTestFile(t, c, "different bytes")

	engine := NewDedupEngine(nil, NewHasher(nil))
	groups := engine.FindDuplicatesInSet([]string{a, b, c})

	require.Len(t, groups, 1)
	for _, members := range groups {
		assert.ElementsMatch(t, []string{a, b}, members)
	}
}

func TestSpaceReclaimable(t *testing.T) {
	groups := map[string][]string{
		"d1": {"/a", "/b", "/c"},
		"d2": {"/x", "/y"},
	}
	sizes := map[string]int64{"/a": 100, "/x": 40}

	got := SpaceReclaimable(groups, func(path string) int64 { return sizes[path] })
	assert.Equal(t, int64(240), got)
}
