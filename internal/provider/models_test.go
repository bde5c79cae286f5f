package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModels = `version: "1.0"
updatedAt: "2025-06-01"
credentials:
  anthropic:
    api_key: ${ANTHROPIC_API_KEY}
  ollama:
    base_url: http://localhost:11434
defaults:
  primary: anthropic/claude-sonnet-4-5
  fallbacks:
    - ollama/qwen3:4b
providers:
  anthropic:
    - id: claude-sonnet-4-5
      displayName: Claude Sonnet 4.5
      contextWindow: 200000
    - id: claude-haiku-3-5
      displayName: Claude Haiku 3.5
      contextWindow: 200000
      active: false
  ollama:
    - id: qwen3:4b
      displayName: Qwen3 4B
      contextWindow: 32768
`

func initTestStore(t *testing.T, contents string) {
	t.Helper()
	dir := t.TempDir()
	if contents != "" {
		err := os.WriteFile(filepath.Join(dir, "models.yaml"), []byte(contents), 0644)
		require.NoError(t, err)
	}
	InitModelsStore(dir)
}

func TestLoadModelsConfig(t *testing.T) {
	initTestStore(t, sampleModels)

	creds := GetAllCredentials()
	require.Contains(t, creds, "anthropic")
	assert.Equal(t, "${ANTHROPIC_API_KEY}", creds["anthropic"].APIKey)
	assert.Equal(t, "http://localhost:11434", creds["ollama"].BaseURL)

	assert.Equal(t, "anthropic/claude-sonnet-4-5", GetDefaultModel())
}

func TestGetProviderModelsFiltersInactive(t *testing.T) {
	initTestStore(t, sampleModels)

	models := GetProviderModels("anthropic")
	require.Len(t, models, 1, "inactive models must be filtered")
	assert.Equal(t, "claude-sonnet-4-5", models[0].ID)
	assert.Equal(t, 200000, models[0].ContextWindow)

	assert.Empty(t, GetProviderModels("no-such-provider"))
}

func TestMissingFileGivesEmptyConfig(t *testing.T) {
	initTestStore(t, "")

	cfg := GetModelsConfig()
	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.Providers)
	assert.Empty(t, GetAllCredentials())
	assert.Empty(t, GetDefaultModel())
}

func TestMalformedFileGivesEmptyConfig(t *testing.T) {
	initTestStore(t, "providers: [not: valid: yaml")

	cfg := GetModelsConfig()
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Providers)
}

func TestReloadInvokesCallbacks(t *testing.T) {
	initTestStore(t, sampleModels)

	var got *ModelsConfig
	OnConfigReload(func(cfg *ModelsConfig) { got = cfg })

	ReloadModels()
	require.NotNil(t, got)
	assert.Contains(t, got.Providers, "ollama")
}

func TestModelIsActiveDefaultsTrue(t *testing.T) {
	m := ModelInfo{ID: "x"}
	assert.True(t, m.IsActive())

	off := false
	m.Active = &off
	assert.False(t, m.IsActive())
}

func TestSplitModelID(t *testing.T) {
	cases := []struct {
		in              string
		provider, model string
	}{
		{"anthropic/claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"ollama/qwen3:4b", "ollama", "qwen3:4b"},
		{"openai", "openai", ""},
		{"", "", ""},
		{"a/b/c", "a", "b/c"},
	}
	for _, tc := range cases {
		p, m := SplitModelID(tc.in)
		assert.Equal(t, tc.provider, p, "provider for %q", tc.in)
		assert.Equal(t, tc.model, m, "model for %q", tc.in)
	}
}
