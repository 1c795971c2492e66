package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/config"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Dimensions = 1536
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOverlapGreaterThanChunkSize(t *testing.T) {
	cfg := config.Default()
	cfg.Splitting.ChunkOverlap = cfg.Splitting.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestLoadMergesProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "server:\n  addr: \":9090\"\nllm:\n  model: mistral\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deptqa.yaml"), []byte(yamlContent), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "mistral", cfg.LLM.Model)
}

func TestLoadAppliesEnvOverrideAboveFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "server:\n  addr: \":9090\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deptqa.yaml"), []byte(yamlContent), 0o644))

	t.Setenv("DEPTQA_SERVER_ADDR", ":7070")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestWriteYAMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := config.Default()
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "addr:")
}
