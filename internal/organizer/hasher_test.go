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

// testDB opens a throwaway sqlite store for one test.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestHashKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	writeTestFile(t, path, "hello")

	digest, err := NewHasher(nil).Hash(path)
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, digest)
}

func TestHashMissingFile(t *testing.T) {
	_, err := NewHasher(nil).Hash(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileAccess)
}

func TestHashMemoryCacheKeyedOnSizeAndModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	writeTestFile(t, path, "hello")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	h := NewHasher(nil)
	first, err := h.Hash(path)
	require.NoError(t, err)

	// Same size, same mtime: the cached digest is served, proving the
	// content is not re-read.
	writeTestFile(t, path, "olleh")
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	second, err := h.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashInvalidatesOnModTimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	writeTestFile(t, path, "hello")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	h := NewHasher(nil)
	first, err := h.Hash(path)
	require.NoError(t, err)

	writeTestFile(t, path, "world")
	second, err := h.Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHashPersistentCache(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	writeTestFile(t, path, "hello")

	digest, err := NewHasher(db).Hash(path)
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, digest)

	var entry database.CacheEntry
	require.NoError(t, db.First(&entry, "path = ?", path).Error)
	assert.Equal(t, helloSHA256, entry.Hash)
	assert.Equal(t, int64(5), entry.Size)

	// A fresh hasher over the same store serves the persisted digest.
	again, err := NewHasher(db).Hash(path)
	require.NoError(t, err)
	assert.Equal(t, digest, again)
}

func TestHashPersistentCacheStaleEntryRecomputed(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	writeTestFile(t, path, "hello")

	_, err := NewHasher(db).Hash(path)
	require.NoError(t, err)

	writeTestFile(t, path, "completely different content")
	digest, err := NewHasher(db).Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, helloSHA256, digest)

	// The stale row is overwritten, not duplicated.
	var count int64
	require.NoError(t, db.Model(&database.CacheEntry{}).Where("path = ?", path).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var entry database.CacheEntry
	require.NoError(t, db.First(&entry, "path = ?", path).Error)
	assert.Equal(t, digest, entry.Hash)
}
