package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, 50, cfg.MaxContext)
	assert.Equal(t, "smart", cfg.ContextMode)
	assert.Equal(t, 24000, cfg.TokenBudget)
	assert.Equal(t, 25, cfg.MaxContextFiles)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 27910, cfg.Port)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
data_dir: ` + dir + `
max_iterations: 10
context_mode: minimal
token_budget: 8000
port: 9999
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, "minimal", cfg.ContextMode)
	assert.Equal(t, 8000, cfg.TokenBudget)
	assert.Equal(t, 9999, cfg.Port)
	// Unset fields keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 25, cfg.MaxContextFiles)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.MaxIterations = 7
	cfg.WorkspaceDir = "/tmp/project"
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.MaxIterations)
	assert.Equal(t, "/tmp/project", loaded.WorkspaceDir)
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DataDir = "~/custom-data"
	cfg.WorkspaceDir = "~/src/project"
	cfg.expandPaths()

	assert.Equal(t, filepath.Join(home, "custom-data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "src", "project"), cfg.WorkspaceDir)
}

func TestDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/hew"
	assert.Equal(t, filepath.Join("/data/hew", "data", "hew.db"), cfg.DBPath())
}

func TestGetProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderConfig{
		{Name: "anthropic", APIKey: "key-1"},
		{Name: "ollama", BaseURL: "http://localhost:11434"},
	}

	p := cfg.GetProvider("ollama")
	require.NotNil(t, p)
	assert.Equal(t, "http://localhost:11434", p.BaseURL)
	assert.Nil(t, cfg.GetProvider("missing"))
}
