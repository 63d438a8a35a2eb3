package database

import (
	"time"
)

// Session statuses persisted on a Session row.
const (
	SessionPending   = "pending"
	SessionRunning   = "running"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionStopped   = "stopped"
	SessionError     = "error"
	SessionUndone    = "undone"
)

// File record statuses persisted on a FileRecord row.
const (
	FileCompleted = "completed"
	FileSkipped   = "skipped"
	FileDuplicate = "duplicate"
	FileError     = "error"
)

// Session represents one source-to-destination organizing run. Sessions are
// never deleted, only transitioned to a terminal status.
type Session struct {
	ID              string `gorm:"primaryKey" json:"id"`
	SourcePath      string `gorm:"not null;index" json:"source_path"`
	DestinationPath string `gorm:"not null;index" json:"destination_path"`
	Status          string `gorm:"not null;index" json:"status"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	FilesScanned   int64 `json:"files_scanned"`
	FilesProcessed int64 `json:"files_processed"`
	FilesSkipped   int64 `json:"files_skipped"`
	FilesDuplicate int64 `json:"files_duplicate"`
	FilesError     int64 `json:"files_error"`
	BytesProcessed int64 `json:"bytes_processed"`
	BytesTotal     int64 `json:"bytes_total"`

	ConfigHash   string `json:"config_hash"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileRecord is one durable row per file that reached the pipeline's persist
// stage. The only in-place rewrite is demoting a record to duplicate when its
// copy lost the dedup registration race. Undo operates solely on records with
// a non-null destination path.
type FileRecord struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	SessionID       string  `gorm:"not null;index" json:"session_id"`
	SourcePath      string  `gorm:"not null;index" json:"source_path"`
	DestinationPath *string `gorm:"index" json:"destination_path,omitempty"`

	Hash      string `gorm:"index:idx_file_records_hash_ext" json:"hash"`
	Extension string `gorm:"index:idx_file_records_hash_ext" json:"extension"`
	Size      int64  `json:"size"`
	FileType  string `json:"file_type"`
	Status    string `gorm:"not null;index" json:"status"`
	Category  string `json:"category"`

	DuplicateOfID *uint `json:"duplicate_of_id,omitempty"`

	DateTaken    *time.Time `json:"date_taken,omitempty"`
	CameraMake   string     `json:"camera_make,omitempty"`
	CameraModel  string     `json:"camera_model,omitempty"`
	MetadataJSON string     `json:"metadata_json,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// DuplicateGroup tracks all sightings of a content digest within an extension
// class. The original is the first file registered with the digest and is
// never replaced.
type DuplicateGroup struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Hash           string `gorm:"not null;uniqueIndex:idx_dup_groups_hash_ext" json:"hash"`
	Extension      string `gorm:"not null;uniqueIndex:idx_dup_groups_hash_ext" json:"extension"`
	OriginalFileID uint   `json:"original_file_id"`
	DuplicateCount int64  `json:"duplicate_count"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// CacheEntry caches a file's content digest keyed by absolute path. An entry
// is valid only while the stored size and mtime match the file on disk.
// Dropping the table costs rehash time, never correctness.
type CacheEntry struct {
	Path         string    `gorm:"primaryKey" json:"path"`
	Hash         string    `gorm:"not null" json:"hash"`
	Size         int64     `json:"size"`
	ModTimeNanos int64     `json:"mod_time_nanos"`
	LastAccessed time.Time `json:"last_accessed"`
}

// SchemaInfo is a single-row table recording the schema version in use.
type SchemaInfo struct {
	Version   int       `gorm:"primaryKey" json:"version"`
	AppliedAt time.Time `json:"applied_at"`
}
