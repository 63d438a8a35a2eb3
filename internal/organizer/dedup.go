package organizer

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/processors"
)

// DedupEngine decides whether a file's content has been seen before within
// its extension class and records the winning original for each group.
//
// The extension class is the file's own extension compared for exact
// equality: photo.jpg and photo.png with identical bytes are NOT duplicates
// of each other. Safe for concurrent use from all pipeline workers.
type DedupEngine struct {
	db     *gorm.DB
	hasher *Hasher

	// registerMu serializes the check-then-write in RegisterFile so two
	// workers seeing the same digest cannot both become the original.
	registerMu sync.Mutex
}

// NewDedupEngine creates a deduplication engine over the shared store.
func NewDedupEngine(db *gorm.DB, hasher *Hasher) *DedupEngine {
	return &DedupEngine{db: db, hasher: hasher}
}

// CheckDuplicate reports whether the file's digest already has a registered
// original in its extension class. digest and ext may be empty, in which case
// they are computed from path.
func (e *DedupEngine) CheckDuplicate(path, digest, ext string) (bool, uint, error) {
	if digest == "" {
		var err error
		digest, err = e.hasher.Hash(path)
		if err != nil {
			return false, 0, err
		}
	}
	if ext == "" {
		ext = processors.Extension(path)
	}

	var group database.DuplicateGroup
	err := e.db.Where("hash = ? AND extension = ?", digest, ext).First(&group).Error
	if err == gorm.ErrRecordNotFound {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, databaseErr(err)
	}
	return true, group.OriginalFileID, nil
}

// RegisterFile records a sighting of digest within ext. The first caller for
// a given (digest, ext) creates the group with recordID as the original; every
// later caller increments the duplicate count. First writer wins by insertion
// order; the original is never re-ranked.
//
// The returned originalID is the group's original record and isOriginal
// reports whether recordID became it. A caller that passed the duplicate
// check but lost the registration race learns so here and must withdraw its
// copy.
func (e *DedupEngine) RegisterFile(path, digest, ext string, recordID uint) (originalID uint, isOriginal bool, err error) {
	e.registerMu.Lock()
	defer e.registerMu.Unlock()

	now := time.Now()

	var group database.DuplicateGroup
	err = e.db.Where("hash = ? AND extension = ?", digest, ext).First(&group).Error
	if err == gorm.ErrRecordNotFound {
		group = database.DuplicateGroup{
			Hash:           digest,
			Extension:      ext,
			OriginalFileID: recordID,
			DuplicateCount: 0,
			FirstSeenAt:    now,
			LastSeenAt:     now,
		}
		if err := e.db.Create(&group).Error; err != nil {
			return 0, false, databaseErr(err)
		}
		return recordID, true, nil
	}
	if err != nil {
		return 0, false, databaseErr(err)
	}

	group.DuplicateCount++
	group.LastSeenAt = now
	if err := e.db.Save(&group).Error; err != nil {
		return 0, false, databaseErr(err)
	}
	logger.Debug("duplicate registered", "path", path, "original_id", group.OriginalFileID, "count", group.DuplicateCount)
	return group.OriginalFileID, false, nil
}

// FindDuplicatesInSet groups an explicit list of paths by content digest,
// independent of the persistent store, and returns only groups with two or
// more members. Unreadable files are skipped.
func (e *DedupEngine) FindDuplicatesInSet(paths []string) map[string][]string {
	byDigest := make(map[string][]string)
	for _, path := range paths {
		digest, err := e.hasher.Hash(path)
		if err != nil {
			logger.Debug("skipping unreadable file in duplicate scan", "path", path, "error", err)
			continue
		}
		byDigest[digest] = append(byDigest[digest], path)
	}

	for digest, group := range byDigest {
		if len(group) < 2 {
			delete(byDigest, digest)
		}
	}
	return byDigest
}

// SpaceReclaimable sums the bytes freed by keeping one file per group.
func SpaceReclaimable(groups map[string][]string, sizeOf func(string) int64) int64 {
	var total int64
	for _, paths := range groups {
		if len(paths) < 2 {
			continue
		}
		size := sizeOf(paths[0])
		total += size * int64(len(paths)-1)
	}
	return total
}
