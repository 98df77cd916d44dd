package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Queue.PollIntervalSecs)
	assert.Equal(t, 2, cfg.Queue.RetryLimit)
	assert.Equal(t, 30, cfg.Queue.RetryDelaySecs)
	assert.Equal(t, "0 6 * * *", cfg.Queue.DetectCron)
	assert.Equal(t, "Europe/Paris", cfg.Queue.Timezone)
	assert.Equal(t, 100, cfg.Detection.PageSize)
	assert.Equal(t, 1, cfg.Detection.DaysBack)
	assert.Equal(t, 40, cfg.Scoring.QualifyThreshold)
	assert.Equal(t, 70, cfg.Scoring.HotThreshold)
	assert.True(t, cfg.Scoring.AutoQualify)
	assert.True(t, cfg.Assignment.AutoAssign)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PROSPECTOR_SCORING_QUALIFY_THRESHOLD", "55")
	t.Setenv("PROSPECTOR_QUEUE_RETRY_LIMIT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 55, cfg.Scoring.QualifyThreshold)
	assert.Equal(t, 5, cfg.Queue.RetryLimit)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
