package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Attention.WarningDays)
	assert.Equal(t, 14, cfg.Attention.DangerDays)
	assert.Equal(t, domain.ActiveStages(), cfg.Attention.Stages())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("attention:\n  warning_days: 3\n  danger_days: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Attention.WarningDays)
	assert.Equal(t, 5, cfg.Attention.DangerDays)
	assert.Len(t, cfg.Attention.ActiveStages, 6)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	_, err := FromYAML([]byte("attention:\n  warning_days: 10\n  danger_days: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "danger_days")

	_, err = FromYAML([]byte("attention:\n  warning_days: 0\n"))
	require.Error(t, err)
}

func TestValidateRejectsUnknownStage(t *testing.T) {
	_, err := FromYAML([]byte("attention:\n  active_stages: [BACKLOG, SHIPPING]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHIPPING")
}

func TestFromTOML(t *testing.T) {
	cfg, err := FromTOML([]byte("[attention]\nwarning_days = 2\ndanger_days = 4\n\n[log]\nformat = \"json\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Attention.WarningDays)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPrefersYAMLAndFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, path, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, tomlName), []byte("[attention]\nwarning_days = 1\ndanger_days = 2\n"), 0o644))
	cfg, path, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, tomlName), path)
	assert.Equal(t, 1, cfg.Attention.WarningDays)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, path, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Path(dir), path)
	assert.Equal(t, 7, cfg.Attention.WarningDays)
}

func TestTOMLRoundTripsThresholds(t *testing.T) {
	out, err := Default().TOML()
	require.NoError(t, err)
	cfg, err := FromTOML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, Default().Attention, cfg.Attention)
}
