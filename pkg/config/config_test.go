package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "meta-llama/llama-4-scout-17b-16e-instruct", cfg.LLM.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "/code/ml_models/best.pt", cfg.Detector.ModelPath)
	assert.InDelta(t, 0.25, cfg.Detector.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Weather.Days)
	assert.Equal(t, 10, cfg.Weather.TimeoutSec)
	assert.Equal(t, 1, cfg.Pipeline.MaxAttempts)
}

func TestLoadBindsProviderEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("GROQ_MODEL", "llama-test")
	t.Setenv("WEATHER_API_KEY", "wk-test")
	t.Setenv("YOLO_MODEL_PATH", "/tmp/model.pt")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.Equal(t, "llama-test", cfg.LLM.Model)
	assert.Equal(t, "wk-test", cfg.Weather.APIKey)
	assert.Equal(t, "/tmp/model.pt", cfg.Detector.ModelPath)
}

func TestLoadPrefixedEnvironment(t *testing.T) {
	t.Setenv("URBANFIX_PIPELINE_MAXATTEMPTS", "0")
	t.Setenv("URBANFIX_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pipeline.MaxAttempts)
}
