package organizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mediasort/mediasort/internal/config"
	"github.com/mediasort/mediasort/internal/database"
	"github.com/mediasort/mediasort/internal/events"
	"github.com/mediasort/mediasort/internal/fsutil"
	"github.com/mediasort/mediasort/internal/logger"
	"github.com/mediasort/mediasort/internal/processors"
	"github.com/mediasort/mediasort/internal/scanner"
)

// State is the orchestrator run state.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

func (s State) terminal() bool {
	switch s {
	case StateStopped, StateCompleted, StateError:
		return true
	}
	return false
}

// Orchestrator drives one session: it scans the source tree, feeds a fixed
// worker pool where each worker owns a Pipeline, aggregates results on a
// single goroutine and persists progress at a bounded cadence.
type Orchestrator struct {
	cfg      *config.Config
	db       *gorm.DB
	sessions *SessionManager
	session  *database.Session
	hasher   *Hasher
	dedup    *DedupEngine
	reserver *destReserver
	scan     *scanner.Scanner
	registry *processors.Registry
	bus      *events.Bus
	callback ProgressCallback

	mu    sync.Mutex
	state State

	gate     *pauseGate
	stopCh   chan struct{}
	stopOnce sync.Once

	progMu   sync.Mutex
	progress Progress

	runDone chan struct{}
}

// New creates an orchestrator with a fresh session for source → dest.
func New(cfg *config.Config, db *gorm.DB, sourcePath, destPath string, bus *events.Bus, callback ProgressCallback) (*Orchestrator, error) {
	sessions := NewSessionManager(db)
	session, err := sessions.CreateSession(sourcePath, destPath, cfg.Fingerprint())
	if err != nil {
		return nil, err
	}
	return newOrchestrator(cfg, db, sessions, session, bus, callback), nil
}

// NewForSession creates an orchestrator that continues an existing session,
// relying on the pipeline's already-processed check to skip finished files.
func NewForSession(cfg *config.Config, db *gorm.DB, session *database.Session, bus *events.Bus, callback ProgressCallback) *Orchestrator {
	return newOrchestrator(cfg, db, NewSessionManager(db), session, bus, callback)
}

func newOrchestrator(cfg *config.Config, db *gorm.DB, sessions *SessionManager, session *database.Session, bus *events.Bus, callback ProgressCallback) *Orchestrator {
	hasher := NewHasher(db)
	o := &Orchestrator{
		cfg:      cfg,
		db:       db,
		sessions: sessions,
		session:  session,
		hasher:   hasher,
		dedup:    NewDedupEngine(db, hasher),
		reserver: newDestReserver(),
		scan:     scanner.New(cfg.Scanner.SkipFolders, cfg.Scanner.SkipFiles, cfg.Scanner.IncludeHidden),
		registry: processors.NewRegistry(),
		bus:      bus,
		callback: callback,
		state:    StateIdle,
		gate:     newPauseGate(),
		stopCh:   make(chan struct{}),
		runDone:  make(chan struct{}),
	}
	o.progress = Progress{
		State:          StateIdle,
		SessionID:      session.ID,
		CategoryCounts: make(map[string]int64),
	}
	return o
}

// Session returns the session this orchestrator drives.
func (o *Orchestrator) Session() *database.Session { return o.session }

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns an immutable copy of the current progress.
func (o *Orchestrator) Snapshot() *Progress {
	o.progMu.Lock()
	defer o.progMu.Unlock()
	return o.progress.clone()
}

// Run executes the session to a terminal state. It blocks until the run
// completes, stops or fails; Pause, Resume and Stop may be called from other
// goroutines while it runs.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.runDone)

	if err := o.transition(StateIdle, StateScanning); err != nil {
		return err
	}
	o.setProgressState(StateScanning, time.Now())

	if err := o.sessions.UpdateStatus(o.session.ID, database.SessionRunning, ""); err != nil {
		return o.failRun(err)
	}
	o.bus.PublishAsync(events.Event{
		Type:    events.EventRunStarted,
		Source:  "orchestrator",
		Message: fmt.Sprintf("organizing %s into %s", o.session.SourcePath, o.session.DestinationPath),
		Data:    map[string]interface{}{"session_id": o.session.ID},
	})

	files, totalBytes, err := o.scanSource(ctx)
	if err != nil {
		return o.failRun(err)
	}

	if o.stopRequested() {
		return o.finishStopped()
	}

	// Pre-flight space check: abort before any worker starts.
	err = fsutil.CheckFreeSpace(o.session.DestinationPath, totalBytes,
		o.cfg.Organizer.MinFreeBytes, o.cfg.Organizer.SpaceBufferPct)
	if err != nil {
		return o.failRun(fmt.Errorf("%w: %v", ErrInsufficientSpace, err))
	}

	if err := o.transition(StateScanning, StateProcessing); err != nil {
		// A stop that landed between the check above and here wins.
		if o.stopRequested() {
			return o.finishStopped()
		}
		return err
	}
	o.setProgressState(StateProcessing, time.Time{})

	runErr := o.processFiles(ctx, files)

	final := o.finalProgress()
	if err := o.sessions.UpdateProgress(o.session.ID, final); err != nil {
		logger.Error("failed to persist final counters", "session_id", o.session.ID, "error", err)
	}

	switch {
	case runErr != nil:
		return o.failRun(runErr)
	case o.stopRequested():
		return o.finishStopped()
	default:
		o.forceState(StateCompleted)
		o.setProgressState(StateCompleted, time.Time{})
		o.emitProgress(true)
		if err := o.sessions.UpdateStatus(o.session.ID, database.SessionCompleted, ""); err != nil {
			return err
		}
		ClearProgress(o.session.DestinationPath)
		o.bus.PublishAsync(events.Event{
			Type:    events.EventRunCompleted,
			Source:  "orchestrator",
			Message: fmt.Sprintf("session %s completed", o.session.ID),
			Data: map[string]interface{}{
				"session_id":      o.session.ID,
				"files_processed": final.FilesProcessed,
				"files_skipped":   final.FilesSkipped,
				"files_duplicate": final.FilesDuplicate,
				"files_error":     final.FilesError,
			},
		})
		logger.Info("run completed",
			"session_id", o.session.ID,
			"processed", final.FilesProcessed,
			"skipped", final.FilesSkipped,
			"duplicates", final.FilesDuplicate,
			"errors", final.FilesError)
		return nil
	}
}

// Pause stops new files from being dequeued; in-flight files finish. Valid
// only while processing.
func (o *Orchestrator) Pause() error {
	if err := o.transition(StateProcessing, StatePaused); err != nil {
		return err
	}
	o.gate.pause()
	o.setProgressState(StatePaused, time.Time{})
	o.emitProgress(true)

	if err := o.sessions.UpdateStatus(o.session.ID, database.SessionPaused, ""); err != nil {
		logger.Error("failed to persist paused status", "error", err)
	}
	o.bus.PublishAsync(events.Event{Type: events.EventRunPaused, Source: "orchestrator",
		Message: fmt.Sprintf("session %s paused", o.session.ID)})
	logger.Info("run paused", "session_id", o.session.ID)
	return nil
}

// Resume reopens the pause gate. Valid only while paused.
func (o *Orchestrator) Resume() error {
	if err := o.transition(StatePaused, StateProcessing); err != nil {
		return err
	}
	o.gate.resume()
	o.setProgressState(StateProcessing, time.Time{})

	if err := o.sessions.UpdateStatus(o.session.ID, database.SessionRunning, ""); err != nil {
		logger.Error("failed to persist running status", "error", err)
	}
	o.bus.PublishAsync(events.Event{Type: events.EventRunResumed, Source: "orchestrator",
		Message: fmt.Sprintf("session %s resumed", o.session.ID)})
	logger.Info("run resumed", "session_id", o.session.ID)
	return nil
}

// Stop requests a cooperative stop: workers observe it at the next safe point
// and in-flight transfers always run to completion. Valid from any
// non-terminal state. Stop returns once the signal is delivered; Run unwinds
// and declares Stopped.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state.terminal() {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot stop from %s", ErrInvalidTransition, state)
	}
	o.state = StateStopping
	o.mu.Unlock()

	o.setProgressState(StateStopping, time.Time{})
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.gate.resume() // unblock paused workers so they can observe the stop
	logger.Info("stop requested", "session_id", o.session.ID)
	return nil
}

// Wait blocks until Run has reached a terminal state.
func (o *Orchestrator) Wait() { <-o.runDone }

// scanSource enumerates the source tree into memory, keeping scan counters
// current. Scanning itself honors the stop signal.
func (o *Orchestrator) scanSource(ctx context.Context) ([]string, int64, error) {
	logger.Info("scanning source", "path", o.session.SourcePath)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.stopCh:
			cancel()
		case <-scanCtx.Done():
		}
	}()

	var files []string
	var totalBytes int64
	for entry := range o.scan.Scan(scanCtx, o.session.SourcePath) {
		files = append(files, entry.Path)
		totalBytes += entry.Size

		if len(files)%100 == 0 {
			o.progMu.Lock()
			o.progress.FilesScanned = int64(len(files))
			o.progress.BytesTotal = totalBytes
			o.progMu.Unlock()
			o.emitProgress(false)
		}
	}

	o.progMu.Lock()
	o.progress.FilesScanned = int64(len(files))
	o.progress.FilesPending = int64(len(files))
	o.progress.BytesTotal = totalBytes
	o.progMu.Unlock()
	o.emitProgress(true)

	logger.Info("scan complete", "files", len(files), "bytes", totalBytes)
	return files, totalBytes, nil
}

// processFiles runs the worker pool and the single-owner aggregation loop.
// The returned error, if any, is run-level (database unavailable).
func (o *Orchestrator) processFiles(ctx context.Context, files []string) error {
	workers := o.cfg.Organizer.Workers
	logger.Info("starting workers", "count", workers, "files", len(files))

	queue := make(chan string, workers*2)
	results := make(chan *Result, workers*2)

	// Feeder: stops between files on the stop signal, never mid-file.
	go func() {
		defer close(queue)
		for _, path := range files {
			select {
			case queue <- path:
			case <-o.stopCh:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			o.worker(id, queue, results)
		}(i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return o.aggregate(results)
}

// worker owns one pipeline instance and pulls paths until the queue drains or
// a stop is observed. The pause gate is honored before every dequeue.
func (o *Orchestrator) worker(id int, queue <-chan string, results chan<- *Result) {
	pipeline := NewPipeline(o.cfg, o.db, o.session.ID, o.session.DestinationPath,
		o.hasher, o.dedup, o.registry, o.reserver)

	for {
		if !o.gate.wait(o.stopCh) {
			return // stop observed while paused
		}

		select {
		case <-o.stopCh:
			return
		case path, ok := <-queue:
			if !ok {
				return
			}
			o.setCurrentFile(path)
			results <- pipeline.Process(path)
		}
	}
}

// aggregate is the sole owner of the run counters. It drains results,
// recomputes throughput and ETA, and emits progress at a bounded interval.
func (o *Orchestrator) aggregate(results <-chan *Result) error {
	ticker := time.NewTicker(o.cfg.Organizer.ProgressInterval)
	defer ticker.Stop()

	var runErr error

	for {
		select {
		case res, ok := <-results:
			if !ok {
				o.emitProgress(true)
				return runErr
			}
			o.applyResult(res)

			// A persistence failure means progress can no longer be
			// trusted; finish in-flight work and escalate.
			if res.Err != nil && errors.Is(res.Err, ErrDatabase) && runErr == nil {
				runErr = res.Err
				o.stopOnce.Do(func() { close(o.stopCh) })
				o.gate.resume()
			}

		case <-ticker.C:
			o.emitProgress(true)
		}
	}
}

func (o *Orchestrator) applyResult(res *Result) {
	o.progMu.Lock()
	defer o.progMu.Unlock()

	o.progress.FilesPending--
	switch res.Outcome {
	case OutcomeCompleted:
		o.progress.FilesProcessed++
		o.progress.BytesProcessed += res.Bytes
		if res.Category != "" {
			o.progress.CategoryCounts[res.Category]++
		}
	case OutcomeSkipped:
		o.progress.FilesSkipped++
	case OutcomeDuplicate:
		o.progress.FilesDuplicate++
	case OutcomeError:
		o.progress.FilesError++
		logger.Warn("file failed", "path", res.SourcePath, "stage", res.Stage, "error", res.Err)
	}

	elapsed := time.Since(o.progress.StartTime).Seconds()
	if elapsed > 0 {
		o.progress.Throughput = float64(o.progress.Completed()) / elapsed
		if o.progress.Throughput > 0 {
			o.progress.ETASeconds = int64(float64(o.progress.FilesPending) / o.progress.Throughput)
		}
	}
	o.progress.LastUpdate = time.Now()
}

// emitProgress invokes the callback and, when persist is set, writes the
// snapshot file and session counters.
func (o *Orchestrator) emitProgress(persist bool) {
	snap := o.Snapshot()

	if o.callback != nil {
		o.callback(snap)
	}
	o.bus.PublishAsync(events.Event{
		Type:   events.EventRunProgress,
		Source: "orchestrator",
		Data: map[string]interface{}{
			"session_id": snap.SessionID,
			"state":      string(snap.State),
			"completed":  snap.Completed(),
			"pending":    snap.FilesPending,
			"throughput": snap.Throughput,
		},
	})

	if persist {
		if err := SaveProgress(o.session.DestinationPath, snap); err != nil {
			logger.Error("failed to save progress snapshot", "error", err)
		}
		if err := o.sessions.UpdateProgress(o.session.ID, snap); err != nil {
			logger.Error("failed to update session progress", "error", err)
		}
	}
}

func (o *Orchestrator) finalProgress() *Progress {
	return o.Snapshot()
}

func (o *Orchestrator) setCurrentFile(path string) {
	o.progMu.Lock()
	o.progress.CurrentFile = path
	o.progMu.Unlock()
}

func (o *Orchestrator) setProgressState(s State, start time.Time) {
	o.progMu.Lock()
	o.progress.State = s
	if !start.IsZero() {
		o.progress.StartTime = start
	}
	o.progMu.Unlock()
}

func (o *Orchestrator) transition(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return fmt.Errorf("%w: cannot move to %s from %s", ErrInvalidTransition, to, o.state)
	}
	o.state = to
	return nil
}

func (o *Orchestrator) forceState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) stopRequested() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) finishStopped() error {
	o.forceState(StateStopped)
	o.setProgressState(StateStopped, time.Time{})
	o.emitProgress(true)
	if err := o.sessions.UpdateStatus(o.session.ID, database.SessionStopped, ""); err != nil {
		return err
	}
	o.bus.PublishAsync(events.Event{Type: events.EventRunStopped, Source: "orchestrator",
		Message: fmt.Sprintf("session %s stopped", o.session.ID)})
	logger.Info("run stopped", "session_id", o.session.ID)
	return nil
}

func (o *Orchestrator) failRun(cause error) error {
	o.forceState(StateError)
	o.setProgressState(StateError, time.Time{})
	o.emitProgress(true)
	if err := o.sessions.UpdateStatus(o.session.ID, database.SessionError, cause.Error()); err != nil {
		logger.Error("failed to persist error status", "error", err)
	}
	o.bus.PublishAsync(events.Event{Type: events.EventRunFailed, Source: "orchestrator",
		Message: cause.Error()})
	logger.Error("run failed", "session_id", o.session.ID, "error", cause)
	return cause
}

// pauseGate blocks workers while paused. The channel is closed while the gate
// is open; pausing swaps in a fresh unclosed channel.
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPauseGate() *pauseGate {
	g := &pauseGate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
		// already paused
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		// already open
	default:
		close(g.ch)
	}
}

// wait blocks until the gate opens, returning false if stop fires first.
func (g *pauseGate) wait(stop <-chan struct{}) bool {
	for {
		g.mu.Lock()
		ch := g.ch
		g.mu.Unlock()

		select {
		case <-ch:
			return true
		case <-stop:
			return false
		}
	}
}
