package organizer

import (
	"errors"
	"fmt"
)

// Sentinel error classes. File-level errors are recorded and counted, never
// escalated; run-level errors move the orchestrator to StateError.
var (
	// ErrFileAccess marks an unreadable or unwritable file (file-level).
	ErrFileAccess = errors.New("file access error")

	// ErrPipeline marks a stage-local hard failure such as conflict
	// resolution exhaustion (file-level).
	ErrPipeline = errors.New("pipeline error")

	// ErrInsufficientSpace aborts a run before any worker starts
	// (run-level, pre-flight).
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrDatabase marks a persistence failure; progress cannot be trusted
	// without the store, so it escalates the run (run-level).
	ErrDatabase = errors.New("database error")

	// ErrInvalidTransition is returned synchronously for a state machine
	// transition the current state does not permit. No state changes.
	ErrInvalidTransition = errors.New("invalid state transition")
)

func fileAccessErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFileAccess, fmt.Sprintf(format, args...))
}

func pipelineErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPipeline, fmt.Sprintf(format, args...))
}

func databaseErr(err error) error {
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}
