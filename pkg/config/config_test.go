package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_RejectsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Router.Strategy = "random"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEscalationThresholdOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Executor.Hybrid.EscalationThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestLoadConfig_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "balanced", cfg.Router.Strategy)
}

func TestLoadConfig_OverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	yaml := "router:\n  strategy: fastest\n  max_retries: 5\nsecurity:\n  level: high\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "fastest", cfg.Router.Strategy)
	assert.Equal(t, 5, cfg.Router.MaxRetries)
	assert.Equal(t, "high", cfg.Security.Level)
	// untouched default preserved
	assert.Equal(t, 5000, cfg.Search.DefaultTimeoutMS)
}

func TestLoadConfig_RejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	yaml := "router:\n  strategy: fastest\n  typo_field: oops\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	yaml := "router:\n  strategy: ${FORGE_TEST_STRATEGY}\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("FORGE_TEST_STRATEGY", "adaptive")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "adaptive", cfg.Router.Strategy)
}
