package organizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mediasort/mediasort/internal/config"
)

// progressFileName is the well-known snapshot location inside the destination
// state directory.
const progressFileName = "progress.json"

// Progress is an immutable snapshot of a run's counters, handed to the
// progress callback and persisted for resume.
type Progress struct {
	State     State  `json:"state"`
	SessionID string `json:"session_id"`

	StartTime   time.Time `json:"start_time"`
	CurrentFile string    `json:"current_file,omitempty"`

	FilesScanned   int64 `json:"files_scanned"`
	FilesProcessed int64 `json:"files_processed"`
	FilesPending   int64 `json:"files_pending"`
	FilesSkipped   int64 `json:"files_skipped"`
	FilesDuplicate int64 `json:"files_duplicate"`
	FilesError     int64 `json:"files_error"`

	BytesProcessed int64 `json:"bytes_processed"`
	BytesTotal     int64 `json:"bytes_total"`

	Throughput float64 `json:"throughput"` // completed files per second
	ETASeconds int64   `json:"eta_seconds"`

	CategoryCounts map[string]int64 `json:"category_counts,omitempty"`

	LastUpdate time.Time `json:"last_update"`
}

// Completed returns the number of files with a terminal outcome.
func (p *Progress) Completed() int64 {
	return p.FilesProcessed + p.FilesSkipped + p.FilesDuplicate + p.FilesError
}

// Percent returns run completion in [0,100].
func (p *Progress) Percent() float64 {
	if p.FilesScanned == 0 {
		return 0
	}
	return float64(p.Completed()) / float64(p.FilesScanned) * 100
}

func (p *Progress) clone() *Progress {
	out := *p
	if p.CategoryCounts != nil {
		out.CategoryCounts = make(map[string]int64, len(p.CategoryCounts))
		for k, v := range p.CategoryCounts {
			out.CategoryCounts[k] = v
		}
	}
	return &out
}

// ProgressCallback receives snapshots at a bounded rate. Callbacks must not
// block; a slow consumer should queue or drop.
type ProgressCallback func(*Progress)

func progressPath(destRoot string) string {
	return filepath.Join(config.DataDir(destRoot), progressFileName)
}

// SaveProgress writes the snapshot to the well-known location, overwriting
// the previous one. The write goes through a temp file plus rename so a crash
// never leaves a torn snapshot.
func SaveProgress(destRoot string, p *Progress) error {
	dir := config.DataDir(destRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	tmp := filepath.Join(dir, progressFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := os.Rename(tmp, progressPath(destRoot)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize progress: %w", err)
	}
	return nil
}

// LoadProgress reads the persisted snapshot, returning nil when none exists.
func LoadProgress(destRoot string) (*Progress, error) {
	data, err := os.ReadFile(progressPath(destRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &p, nil
}

// ClearProgress removes the snapshot file; done on clean completion.
func ClearProgress(destRoot string) {
	os.Remove(progressPath(destRoot))
}
