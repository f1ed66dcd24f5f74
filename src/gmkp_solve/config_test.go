package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0666))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"engine": "highs",
		"timeLimit": "1m30s",
		"stopRule": "objective",
		"tolerance": 1e-5,
		"parallel": 4,
		"modelDir": "models"
	}`)

	cfg := defaultConfig()
	require.NoError(t, loadConfig(path, &cfg))
	assert.Equal(t, Config{
		Engine:    "highs",
		TimeLimit: 90 * time.Second,
		StopRule:  "objective",
		Tolerance: 1e-5,
		Parallel:  4,
		ModelDir:  "models",
	}, cfg)

	opts, err := cfg.divingOptions()
	require.NoError(t, err)
	assert.Equal(t, gmkp.StopIntegralObjective, opts.StopRule)
	assert.Equal(t, 90*time.Second, opts.TimeBudget)
	assert.Equal(t, 1e-5, opts.Tolerance)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, loadConfig(writeConfig(t, `{"parallel": 2}`), &cfg))
	assert.Equal(t, "simplex", cfg.Engine)
	assert.Equal(t, "vector", cfg.StopRule)
	assert.Equal(t, 2, cfg.Parallel)
}

func TestLoadConfigErrors(t *testing.T) {
	cfg := defaultConfig()
	assert.Error(t, loadConfig(writeConfig(t, `{"engin": "highs"}`), &cfg))
	assert.Error(t, loadConfig(writeConfig(t, `{"timeLimit": "soon"}`), &cfg))
	assert.Error(t, loadConfig(writeConfig(t, `not json`), &cfg))
	assert.Error(t, loadConfig(filepath.Join(t.TempDir(), "missing.json"), &cfg))
}

func TestDivingOptionsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.StopRule = "never"
	_, err := cfg.divingOptions()
	assert.Error(t, err)

	cfg = defaultConfig()
	cfg.TimeLimit = -time.Second
	_, err = cfg.divingOptions()
	assert.Error(t, err)
}

func TestNewEngine(t *testing.T) {
	engine, err := newEngine("simplex")
	require.NoError(t, err)
	assert.IsType(t, &gmkp.SimplexEngine{}, engine)

	_, err = newEngine("cplex")
	assert.True(t, errors.Is(err, gmkp.ErrUnknownEngine), "got %v", err)
	assert.Contains(t, err.Error(), "golp, highs, simplex")
}
