package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Import.BatchSize)
	assert.Equal(t, 10.0, cfg.Import.MaxErrorPercentage)
	assert.Equal(t, 1000, cfg.Import.MaxStoredErrors)
	assert.True(t, cfg.Import.GenerateAccounting)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("import:\n  batch_size: 100\n  generate_accounting: false\ndatabase:\n  host: db.internal\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("TABIMPORT_IMPORT_MAX_ERROR_PERCENTAGE", "25")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Import.BatchSize)
	assert.False(t, cfg.Import.GenerateAccounting)
	assert.Equal(t, 25.0, cfg.Import.MaxErrorPercentage)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, slog.LevelDebug, ParseLevel(cfg.Log.Level))
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("import:\n  batch_size: 0\n"), 0o600))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestNewLoggerWritesBothOutputs(t *testing.T) {
	var text, js bytes.Buffer
	logger := NewLogger(&text, &js, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("chunk committed", "rows", 500)

	assert.Contains(t, text.String(), "chunk committed")
	assert.NotContains(t, text.String(), "hidden")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &rec))
	assert.Equal(t, float64(500), rec["rows"])
}
