package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval())
	require.Equal(t, 2*time.Minute, cfg.Scheduler.JobTimeout())
	require.Equal(t, 6, cfg.Scheduler.MaxConcurrent)
	require.Equal(t, 2, cfg.Health.DegradedAfter)
	require.Equal(t, 5, cfg.Health.FailingAfter)
	require.Equal(t, 10, cfg.Health.DisableAfter)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, 3, cfg.Skill.SampleCount)
	require.Equal(t, 10, cfg.Extract.DriftWindow)
	require.Equal(t, 0.5, cfg.Extract.DriftThreshold)
	require.Equal(t, "sources", cfg.DB.SourcesTable)
	require.False(t, cfg.Render.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
server:
  port: 9999
scheduler:
  max_concurrent: 12
llm:
  model: gpt-4o
render:
  enabled: true
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 12, cfg.Scheduler.MaxConcurrent)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.True(t, cfg.Render.Enabled)
	// Untouched sections keep their defaults.
	require.Equal(t, 2, cfg.Health.DegradedAfter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INGESTD_SERVER_PORT", "7070")
	t.Setenv("INGESTD_LLM_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Health.FailingAfter = 1
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Scheduler.MaxConcurrent = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Extract.DriftThreshold = 1.5
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Skill.MinValidFraction = 0
	require.Error(t, bad.Validate())
}
