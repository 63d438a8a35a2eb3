package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/fsutil"
	"github.com/mediasort/mediasort/internal/logger"
)

// SessionManager owns the durable session lifecycle: creation, status and
// progress persistence, resume discovery and undo.
type SessionManager struct {
	db *gorm.DB
}

// NewSessionManager creates a session manager over the shared store.
func NewSessionManager(db *gorm.DB) *SessionManager {
	return &SessionManager{db: db}
}

// CreateSession inserts a new pending session binding source to destination.
// At most one session per destination may be running or paused; a second is
// refused.
func (m *SessionManager) CreateSession(sourcePath, destPath, configHash string) (*database.Session, error) {
	var active int64
	err := m.db.Model(&database.Session{}).
		Where("destination_path = ? AND status IN ?", destPath,
			[]string{database.SessionRunning, database.SessionPaused}).
		Count(&active).Error
	if err != nil {
		return nil, databaseErr(err)
	}
	if active > 0 {
		return nil, fmt.Errorf("an active session already exists for destination %s", destPath)
	}

	session := &database.Session{
		ID:              uuid.NewString(),
		SourcePath:      sourcePath,
		DestinationPath: destPath,
		Status:          database.SessionPending,
		StartedAt:       time.Now(),
		ConfigHash:      configHash,
	}
	if err := m.db.Create(session).Error; err != nil {
		return nil, databaseErr(err)
	}

	logger.Info("session created", "session_id", session.ID, "source", sourcePath, "destination", destPath)
	return session, nil
}

// Get loads a session by ID.
func (m *SessionManager) Get(sessionID string) (*database.Session, error) {
	var session database.Session
	if err := m.db.First(&session, "id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, databaseErr(err)
	}
	return &session, nil
}

// List returns sessions newest first.
func (m *SessionManager) List(limit int) ([]database.Session, error) {
	var sessions []database.Session
	q := m.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, databaseErr(err)
	}
	return sessions, nil
}

// UpdateStatus moves a session to status, stamping the end time on terminal
// states and recording errorMsg when non-empty.
func (m *SessionManager) UpdateStatus(sessionID, status, errorMsg string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMsg,
	}
	switch status {
	case database.SessionCompleted, database.SessionStopped, database.SessionError, database.SessionUndone:
		now := time.Now()
		updates["ended_at"] = &now
	}

	if err := m.db.Model(&database.Session{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
		return databaseErr(err)
	}
	logger.Debug("session status updated", "session_id", sessionID, "status", status)
	return nil
}

// UpdateProgress persists the running counters onto the session row.
func (m *SessionManager) UpdateProgress(sessionID string, p *Progress) error {
	updates := map[string]interface{}{
		"files_scanned":   p.FilesScanned,
		"files_processed": p.FilesProcessed,
		"files_skipped":   p.FilesSkipped,
		"files_duplicate": p.FilesDuplicate,
		"files_error":     p.FilesError,
		"bytes_processed": p.BytesProcessed,
		"bytes_total":     p.BytesTotal,
	}
	if err := m.db.Model(&database.Session{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
		return databaseErr(err)
	}
	return nil
}

// FindResumable returns the most recent running or paused session. A session
// whose source or destination no longer exists is reported as an error rather
// than silently dropped, since the operator must decide what to do with it.
func (m *SessionManager) FindResumable() (*database.Session, error) {
	var session database.Session
	err := m.db.Where("status IN ?", []string{database.SessionRunning, database.SessionPaused}).
		Order("started_at DESC").
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, databaseErr(err)
	}

	if _, err := os.Stat(session.SourcePath); err != nil {
		return nil, fmt.Errorf("session %s is not resumable: source path %s is gone", session.ID, session.SourcePath)
	}
	if _, err := os.Stat(session.DestinationPath); err != nil {
		return nil, fmt.Errorf("session %s is not resumable: destination path %s is gone", session.ID, session.DestinationPath)
	}
	return &session, nil
}

// RecoverOrphaned flips sessions left in running state by a crashed process
// to paused so FindResumable can offer them. Returns the number recovered.
func (m *SessionManager) RecoverOrphaned() (int, error) {
	result := m.db.Model(&database.Session{}).
		Where("status = ?", database.SessionRunning).
		Update("status", database.SessionPaused)
	if result.Error != nil {
		return 0, databaseErr(result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Info("recovered orphaned sessions", "count", result.RowsAffected)
	}
	return int(result.RowsAffected), nil
}

// SessionStats summarizes a session's file records by status.
type SessionStats struct {
	TotalFiles int64
	Completed  int64
	Skipped    int64
	Duplicates int64
	Errors     int64
}

// Stats aggregates file record counts for a session.
func (m *SessionManager) Stats(sessionID string) (*SessionStats, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := m.db.Model(&database.FileRecord{}).
		Select("status, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, databaseErr(err)
	}

	stats := &SessionStats{}
	for _, r := range rows {
		stats.TotalFiles += r.N
		switch r.Status {
		case database.FileCompleted:
			stats.Completed = r.N
		case database.FileSkipped:
			stats.Skipped = r.N
		case database.FileDuplicate:
			stats.Duplicates = r.N
		case database.FileError:
			stats.Errors = r.N
		}
	}
	return stats, nil
}

// UndoResult reports what an undo did (or would do, for a dry run).
type UndoResult struct {
	FilesDeleted int
	FilesFailed  int
	DirsDeleted  int
	Errors       []string
}

// Undo deletes every destination file recorded for the session, then prunes
// now-empty parent directories deepest first. Deleting an already-missing
// file is a no-op, which makes undo idempotent. With dryRun the same
// enumeration runs without touching the filesystem.
//
// Undo is deliberately best-effort: a failure partway leaves earlier
// deletions in place, accumulated in the result rather than rolled back.
func (m *SessionManager) Undo(sessionID string, dryRun bool) (*UndoResult, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	var records []database.FileRecord
	err = m.db.Where("session_id = ? AND destination_path IS NOT NULL", sessionID).
		Order("destination_path DESC").
		Find(&records).Error
	if err != nil {
		return nil, databaseErr(err)
	}

	result := &UndoResult{}
	parentDirs := make(map[string]bool)

	for _, record := range records {
		dest := *record.DestinationPath
		parentDirs[filepath.Dir(dest)] = true

		if _, err := os.Stat(dest); os.IsNotExist(err) {
			continue // already gone; not an error, not a deletion
		}

		if dryRun {
			result.FilesDeleted++
			continue
		}

		if err := os.Remove(dest); err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", dest, err))
			continue
		}
		result.FilesDeleted++
	}

	if !dryRun {
		// Walk each parent chain up to (but excluding) the destination root
		// so emptied intermediate directories go too.
		dirs := make([]string, 0, len(parentDirs))
		for dir := range parentDirs {
			for d := dir; insideRoot(d, session.DestinationPath) && d != session.DestinationPath; d = filepath.Dir(d) {
				dirs = append(dirs, d)
			}
		}
		result.DirsDeleted = fsutil.RemoveEmptyDirs(dirs)

		if err := m.UpdateStatus(sessionID, database.SessionUndone, ""); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update session status: %v", err))
		}
	}

	logger.Info("undo finished",
		"session_id", sessionID,
		"dry_run", dryRun,
		"files_deleted", result.FilesDeleted,
		"files_failed", result.FilesFailed,
		"dirs_deleted", result.DirsDeleted)
	return result, nil
}

// insideRoot reports whether path is underneath root.
func insideRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
