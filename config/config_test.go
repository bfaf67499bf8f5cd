package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "yang_zhang", cfg.Estimator.Model)
	assert.Equal(t, 60, cfg.Estimator.Window)
	assert.Equal(t, 240.0, cfg.Estimator.AnnualDays)
	assert.Equal(t, "skip", cfg.Runner.OnError)
	assert.Equal(t, 1200, cfg.Implied.Paths)
	assert.Equal(t, 0.05, cfg.Implied.BracketLo)
	assert.Equal(t, []int{3, 6, 9, 12}, cfg.Phoenix.Tenors)
	assert.Len(t, cfg.Phoenix.Sigmas, 5)
	assert.Equal(t, 7, cfg.VIX.MinNearDays)
	assert.Equal(t, 0.03, cfg.Rates.DefaultRate)
	assert.Equal(t, "volbot.db", cfg.Storage.DSN)
}

func TestLoad_YAMLValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
estimator:
  model: parkinson
  window: 20
phoenix:
  tenors: [1, 2]
  sigmas: [0.3]
  seed: 42
data:
  ohlc_csv: prices.csv
`))
	require.NoError(t, err)

	assert.Equal(t, "parkinson", cfg.Estimator.Model)
	assert.Equal(t, 20, cfg.Estimator.Window)
	assert.Equal(t, []int{1, 2}, cfg.Phoenix.Tenors)
	assert.Equal(t, []float64{0.3}, cfg.Phoenix.Sigmas)
	assert.Equal(t, uint64(42), cfg.Phoenix.Seed)
	assert.Equal(t, "prices.csv", cfg.Data.OHLCCSV)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("VOLBOT_DB", ":memory:")
	t.Setenv("VOLBOT_SEED", "7")

	cfg, err := Load(writeConfig(t, "storage:\n  dsn: file.db\nphoenix:\n  seed: 1\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, uint64(7), cfg.Phoenix.Seed)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "estimator: [unclosed"))
	assert.ErrorContains(t, err, "parse YAML")

	t.Setenv("VOLBOT_SEED", "abc")
	_, err = Load(writeConfig(t, ""))
	assert.ErrorContains(t, err, "VOLBOT_SEED")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 50000, cfg.Phoenix.Paths)
	assert.Equal(t, "both", cfg.VIX.Method)
}
