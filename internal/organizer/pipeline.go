package organizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/config"
	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/fsutil"
	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/processors"
)

// Stage identifies a pipeline step. Stages run in strict order; any stage may
// short-circuit to a terminal outcome.
type Stage string

const (
	StageInit               Stage = "init"
	StageProcessedCheck     Stage = "processed_check"
	StagePatternCheck       Stage = "pattern_check"
	StageTypeDetection      Stage = "type_detection"
	StageUnknownFilter      Stage = "unknown_filter"
	StageDeduplication      Stage = "deduplication"
	StageMetadataExtraction Stage = "metadata_extraction"
	StageCategorization     Stage = "categorization"
	StagePathGeneration     Stage = "path_generation"
	StageConflictResolution Stage = "conflict_resolution"
	StageFileTransfer       Stage = "file_transfer"
	StagePersist            Stage = "persist"
	StageProgressEmit       Stage = "progress_emit"
	StageCompleted          Stage = "completed"
	StageFailed             Stage = "failed"
	StageSkipped            Stage = "skipped"
)

// Outcome is the terminal status of one file's trip through the pipeline.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// maxConflictAttempts bounds the "-1", "-2", … suffix search; exceeding it is
// a hard pipeline error rather than an unbounded loop.
const maxConflictAttempts = 10000

// wellKnownJunk are OS artifacts always skipped regardless of configuration.
var wellKnownJunk = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// Result describes how one file was handled.
type Result struct {
	SourcePath      string
	DestinationPath string
	Outcome         Outcome
	Stage           Stage
	FileType        processors.FileType
	Category        string
	DuplicateOfID   uint
	Bytes           int64
	SidecarsCopied  int
	Err             error
}

// Pipeline processes a single file through the staged state machine. One
// pipeline instance belongs to exactly one worker; pipelines share only the
// dedup engine, the destination reserver and the store, all safe for
// concurrent use.
type Pipeline struct {
	cfg       *config.Config
	db        *gorm.DB
	sessionID string
	destRoot  string
	hasher    *Hasher
	dedup     *DedupEngine
	registry  *processors.Registry
	reserver  *destReserver
}

// NewPipeline creates a pipeline bound to a session and destination root.
// Pipelines sharing a destination must share the same reserver.
func NewPipeline(cfg *config.Config, db *gorm.DB, sessionID, destRoot string, hasher *Hasher, dedup *DedupEngine, registry *processors.Registry, reserver *destReserver) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		db:        db,
		sessionID: sessionID,
		destRoot:  destRoot,
		hasher:    hasher,
		dedup:     dedup,
		registry:  registry,
		reserver:  reserver,
	}
}

// Process runs path through every stage. It never panics the worker and never
// returns an error: failures are folded into the result with the stage at
// which they occurred. Run-level database failures are surfaced via Result.Err
// wrapped as ErrDatabase so the orchestrator can escalate.
func (p *Pipeline) Process(path string) *Result {
	res := &Result{SourcePath: path, Stage: StageInit}

	// Stage: already processed in this session (safe re-entry on resume).
	res.Stage = StageProcessedCheck
	done, err := p.alreadyProcessed(path)
	if err != nil {
		return p.fail(res, err)
	}
	if done {
		res.Outcome = OutcomeSkipped
		res.Stage = StageSkipped
		return res
	}

	// Stage: skip patterns.
	res.Stage = StagePatternCheck
	if p.shouldSkip(path) {
		res.Outcome = OutcomeSkipped
		res.Stage = StageSkipped
		return res
	}

	// Stage: type detection and unknown filter.
	res.Stage = StageTypeDetection
	fileType := processors.DetectType(path)
	res.FileType = fileType

	res.Stage = StageUnknownFilter
	if fileType == processors.TypeUnknown {
		res.Outcome = OutcomeSkipped
		res.Stage = StageSkipped
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return p.fail(res, fileAccessErr("cannot stat %s: %v", path, err))
	}
	ext := processors.Extension(path)

	// Stage: deduplication.
	res.Stage = StageDeduplication
	digest, err := p.hasher.Hash(path)
	if err != nil {
		return p.fail(res, err)
	}
	isDup, originalID, err := p.dedup.CheckDuplicate(path, digest, ext)
	if err != nil {
		return p.fail(res, err)
	}
	if isDup {
		return p.recordDuplicate(res, path, digest, ext, info.Size(), fileType, originalID)
	}

	proc, err := p.registry.Get(fileType)
	if err != nil {
		return p.fail(res, pipelineErr("%v", err))
	}

	// Stage: metadata extraction. Extraction errors degrade, never fail.
	res.Stage = StageMetadataExtraction
	meta, err := proc.ExtractMetadata(path)
	if err != nil {
		logger.Debug("metadata extraction degraded", "path", path, "error", err)
	}
	if meta == nil {
		meta = processors.Metadata{}
	}

	// Stage: categorization.
	res.Stage = StageCategorization
	category := proc.Categorize(path, meta)
	res.Category = category

	// Stage: destination path synthesis.
	res.Stage = StagePathGeneration
	destPath := proc.DestinationPath(path, p.destRoot, meta, category)

	// Stage: conflict resolution. The claim also guards against another
	// worker racing for the same resolved name.
	res.Stage = StageConflictResolution
	destPath, err = p.reserver.claim(destPath)
	if err != nil {
		return p.fail(res, err)
	}
	res.DestinationPath = destPath

	// Stage: atomic transfer plus best-effort sidecars.
	res.Stage = StageFileTransfer
	written, err := fsutil.CopyFileAtomic(path, destPath)
	p.reserver.release(destPath)
	if err != nil {
		return p.fail(res, fileAccessErr("transfer failed: %v", err))
	}
	res.Bytes = written
	if p.cfg.Organizer.CopySidecars {
		res.SidecarsCopied = p.copySidecars(path, destPath)
	}

	// Stage: persist the record and register the content digest.
	res.Stage = StagePersist
	record, err := p.persist(path, destPath, digest, ext, info.Size(), fileType, category, meta)
	if err != nil {
		// The copy landed but the row did not; remove the copy so undo
		// bookkeeping stays exact, then surface the database failure.
		os.Remove(destPath)
		return p.fail(res, err)
	}
	originalID, isOriginal, err := p.dedup.RegisterFile(path, digest, ext, record.ID)
	if err != nil {
		return p.fail(res, err)
	}
	if !isOriginal {
		// Another worker registered the same content between our duplicate
		// check and now; withdraw the redundant copy and demote the record.
		return p.demoteToDuplicate(res, record, destPath, originalID)
	}

	res.Stage = StageProgressEmit
	res.Outcome = OutcomeCompleted
	res.Stage = StageCompleted
	return res
}

func (p *Pipeline) fail(res *Result, err error) *Result {
	res.Outcome = OutcomeError
	res.Err = err
	p.recordError(res.SourcePath, res.Stage, err)
	res.Stage = StageFailed
	return res
}

func (p *Pipeline) alreadyProcessed(path string) (bool, error) {
	var count int64
	err := p.db.Model(&database.FileRecord{}).
		Where("session_id = ? AND source_path = ? AND status = ?",
			p.sessionID, path, database.FileCompleted).
		Count(&count).Error
	if err != nil {
		return false, databaseErr(err)
	}
	return count > 0, nil
}

func (p *Pipeline) shouldSkip(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") && !p.cfg.Scanner.IncludeHidden {
		return true
	}
	if wellKnownJunk[name] {
		return true
	}
	for _, pattern := range p.cfg.Scanner.SkipFiles {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// destReserver tracks destination names currently being written so two
// workers can never claim the same resolved name. Disk state alone is not
// enough: the winner's file only appears once its rename lands.
type destReserver struct {
	mu       sync.Mutex
	inflight map[string]bool
}

func newDestReserver() *destReserver {
	return &destReserver{inflight: make(map[string]bool)}
}

// claim returns the first "-1", "-2", … variant of destPath that neither
// exists on disk nor is in flight, and marks it in flight until released.
func (r *destReserver) claim(destPath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext := filepath.Ext(destPath)
	stem := strings.TrimSuffix(destPath, ext)
	for i := 0; i <= maxConflictAttempts; i++ {
		candidate := destPath
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		if r.inflight[candidate] {
			continue
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			r.inflight[candidate] = true
			return candidate, nil
		}
	}
	return "", pipelineErr("conflict resolution exhausted after %d attempts for %s", maxConflictAttempts, destPath)
}

func (r *destReserver) release(path string) {
	r.mu.Lock()
	delete(r.inflight, path)
	r.mu.Unlock()
}

// resolveConflict appends -1, -2, … before the extension until the name is
// free. Used for sidecars, which need no cross-worker reservation.
func resolveConflict(destPath string) (string, error) {
	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return destPath, nil
	}

	ext := filepath.Ext(destPath)
	stem := strings.TrimSuffix(destPath, ext)
	for i := 1; i <= maxConflictAttempts; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", pipelineErr("conflict resolution exhausted after %d attempts for %s", maxConflictAttempts, destPath)
}

// copySidecars copies companion files next to the transferred destination.
// Sidecar failures are logged and counted but never fail the main file.
func (p *Pipeline) copySidecars(srcPath, destPath string) int {
	copied := 0
	destDir := filepath.Dir(destPath)
	for _, sidecar := range fsutil.FindSidecars(srcPath) {
		target := filepath.Join(destDir, filepath.Base(sidecar))
		target, err := resolveConflict(target)
		if err != nil {
			logger.Warn("sidecar name conflict unresolved", "sidecar", sidecar, "error", err)
			continue
		}
		if _, err := fsutil.CopyFileAtomic(sidecar, target); err != nil {
			logger.Warn("sidecar copy failed", "sidecar", sidecar, "error", err)
			continue
		}
		copied++
	}
	return copied
}

func (p *Pipeline) persist(srcPath, destPath, digest, ext string, size int64, fileType processors.FileType, category string, meta processors.Metadata) (*database.FileRecord, error) {
	record := &database.FileRecord{
		SessionID:       p.sessionID,
		SourcePath:      srcPath,
		DestinationPath: &destPath,
		Hash:            digest,
		Extension:       ext,
		Size:            size,
		FileType:        string(fileType),
		Status:          database.FileCompleted,
		Category:        category,
		CameraMake:      meta.String("camera_make"),
		CameraModel:     meta.String("camera_model"),
		ProcessedAt:     time.Now(),
	}
	if taken, ok := meta.DateTaken(); ok {
		record.DateTaken = &taken
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			record.MetadataJSON = string(raw)
		}
	}

	if err := p.db.Create(record).Error; err != nil {
		return nil, databaseErr(err)
	}
	return record, nil
}

func (p *Pipeline) recordDuplicate(res *Result, path, digest, ext string, size int64, fileType processors.FileType, originalID uint) *Result {
	record := &database.FileRecord{
		SessionID:     p.sessionID,
		SourcePath:    path,
		Hash:          digest,
		Extension:     ext,
		Size:          size,
		FileType:      string(fileType),
		Status:        database.FileDuplicate,
		DuplicateOfID: &originalID,
		ProcessedAt:   time.Now(),
	}
	if err := p.db.Create(record).Error; err != nil {
		return p.fail(res, databaseErr(err))
	}
	if _, _, err := p.dedup.RegisterFile(path, digest, ext, originalID); err != nil {
		return p.fail(res, err)
	}

	res.Outcome = OutcomeDuplicate
	res.DuplicateOfID = originalID
	res.Stage = StageSkipped
	return res
}

// demoteToDuplicate undoes a copy that lost the registration race: the file
// on disk is removed and the already-persisted record is rewritten as a
// duplicate of the winner.
func (p *Pipeline) demoteToDuplicate(res *Result, record *database.FileRecord, destPath string, originalID uint) *Result {
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to withdraw redundant copy", "path", destPath, "error", err)
	}

	updates := map[string]interface{}{
		"status":           database.FileDuplicate,
		"destination_path": nil,
		"duplicate_of_id":  originalID,
	}
	if err := p.db.Model(record).Updates(updates).Error; err != nil {
		return p.fail(res, databaseErr(err))
	}

	res.Outcome = OutcomeDuplicate
	res.DuplicateOfID = originalID
	res.DestinationPath = ""
	res.Bytes = 0
	res.Stage = StageSkipped
	return res
}

// recordError persists a file-level failure row; a store that is itself down
// can only log.
func (p *Pipeline) recordError(path string, stage Stage, cause error) {
	record := &database.FileRecord{
		SessionID:    p.sessionID,
		SourcePath:   path,
		Status:       database.FileError,
		ErrorMessage: fmt.Sprintf("stage %s: %v", stage, cause),
		ProcessedAt:  time.Now(),
	}
	if err := p.db.Create(record).Error; err != nil {
		logger.Error("failed to record file error", "path", path, "error", err)
	}
}
