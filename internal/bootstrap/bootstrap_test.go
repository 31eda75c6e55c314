package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfix/backend/internal/department"
	"github.com/urbanfix/backend/internal/llm"
	"github.com/urbanfix/backend/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LLM:      config.LLMConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:1", Model: "test-model", TimeoutSec: 1},
		Detector: config.DetectorConfig{ModelPath: filepath.Join(t.TempDir(), "missing.pt"), TimeoutSec: 1},
		Weather:  config.WeatherConfig{Days: 10, TimeoutSec: 1},
		Pipeline: config.PipelineConfig{MaxAttempts: 1},
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
	}
}

func TestBuildRequiresLLMKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	_, err := Build(cfg)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestBuildAndSeed(t *testing.T) {
	c, err := Build(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.NotNil(t, c.Predictions)
	assert.NotNil(t, c.Suggester)
	assert.Nil(t, c.Redis)
	cbState, failures := c.LLM.CircuitState()
	assert.Equal(t, "closed", cbState)
	assert.Zero(t, failures)
	assert.Error(t, c.Detector.Ready(context.Background()))

	ctx := context.Background()
	require.NoError(t, c.SeedDepartments(ctx))
	require.NoError(t, c.SeedDepartments(ctx))

	depts, err := c.SQLite.ListDepartments(ctx)
	require.NoError(t, err)
	assert.Len(t, depts, len(department.BuiltinDepartments))
}
