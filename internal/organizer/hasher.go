package organizer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/logger"
)

const hashBufferSize = 64 * 1024

// Hasher computes SHA-256 content digests with a two-level cache: an in-memory
// map for the current process and a persistent cache table keyed by path. A
// cached digest is served only while the file's size and mtime still match.
type Hasher struct {
	db *gorm.DB

	mu  sync.RWMutex
	mem map[string]memEntry
}

type memEntry struct {
	hash    string
	size    int64
	modTime int64
}

// NewHasher creates a hasher backed by the given store. A nil db disables the
// persistent tier; hashing still works, only cache durability is lost.
func NewHasher(db *gorm.DB) *Hasher {
	return &Hasher{
		db:  db,
		mem: make(map[string]memEntry),
	}
}

// Hash returns the content digest of path, consulting the caches first.
// An unreadable file propagates a file access error to the caller.
func (h *Hasher) Hash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fileAccessErr("cannot stat %s: %v", path, err)
	}
	size := info.Size()
	modTime := info.ModTime().UnixNano()

	h.mu.RLock()
	entry, ok := h.mem[path]
	h.mu.RUnlock()
	if ok && entry.size == size && entry.modTime == modTime {
		return entry.hash, nil
	}

	if digest := h.lookupPersistent(path, size, modTime); digest != "" {
		h.remember(path, digest, size, modTime)
		return digest, nil
	}

	digest, err := hashFile(path)
	if err != nil {
		return "", err
	}

	h.remember(path, digest, size, modTime)
	h.storePersistent(path, digest, size, modTime)
	return digest, nil
}

func (h *Hasher) remember(path, digest string, size, modTime int64) {
	h.mu.Lock()
	h.mem[path] = memEntry{hash: digest, size: size, modTime: modTime}
	h.mu.Unlock()
}

func (h *Hasher) lookupPersistent(path string, size, modTime int64) string {
	if h.db == nil {
		return ""
	}
	var entry database.CacheEntry
	err := h.db.Where("path = ?", path).First(&entry).Error
	if err != nil {
		return ""
	}
	if entry.Size != size || entry.ModTimeNanos != modTime {
		return "" // stale; overwritten after recompute
	}

	// Touch last access, best effort.
	h.db.Model(&database.CacheEntry{}).Where("path = ?", path).
		Update("last_accessed", time.Now())

	return entry.Hash
}

func (h *Hasher) storePersistent(path, digest string, size, modTime int64) {
	if h.db == nil {
		return
	}
	entry := database.CacheEntry{
		Path:         path,
		Hash:         digest,
		Size:         size,
		ModTimeNanos: modTime,
		LastAccessed: time.Now(),
	}
	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		// Cache writes are advisory; the digest is already computed.
		logger.Debug("hash cache write failed", "path", path, "error", err)
	}
}

// hashFile streams the file through SHA-256 in fixed-size chunks.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fileAccessErr("cannot open %s: %v", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fileAccessErr("cannot read %s: %v", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
