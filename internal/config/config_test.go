package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.GreaterOrEqual(t, cfg.Organizer.Workers, 1)
	assert.LessOrEqual(t, cfg.Organizer.Workers, 16)
	assert.Equal(t, int64(5<<30), cfg.Organizer.MinFreeBytes)
	assert.Equal(t, time.Second, cfg.Organizer.ProgressInterval)
	assert.True(t, cfg.Organizer.CopySidecars)
	assert.Contains(t, cfg.Scanner.SkipFolders, "node_modules")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediasort.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
organizer:
  workers: 4
  progress_interval: 500ms
scanner:
  include_hidden: true
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Organizer.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Organizer.ProgressInterval)
	assert.True(t, cfg.Scanner.IncludeHidden)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, int64(5<<30), cfg.Organizer.MinFreeBytes)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Organizer.MinFreeBytes, cfg.Organizer.MinFreeBytes)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organizer: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDIASORT_WORKERS", "2")
	t.Setenv("MEDIASORT_LOG_LEVEL", "warn")
	t.Setenv("MEDIASORT_INCLUDE_HIDDEN", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Organizer.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Scanner.IncludeHidden)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Organizer.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Organizer.Workers = 65
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Organizer.ProgressInterval = 10 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Organizer.MinFreeBytes = -1
	assert.Error(t, cfg.Validate())
}

func TestFingerprint(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Organizer.Workers = a.Organizer.Workers + 1
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/dest", ".mediasort", "mediasort.db"), cfg.DatabasePath("/dest"))

	cfg.Database.Path = "/elsewhere/state.db"
	assert.Equal(t, "/elsewhere/state.db", cfg.DatabasePath("/dest"))
}
