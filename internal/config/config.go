package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hewlab/hew/internal/provider"
)

// Config holds the host configuration
type Config struct {
	// Provider configuration loaded from models.yaml credentials
	Providers []ProviderConfig `yaml:"-"` // Not in config.yaml, loaded from models.yaml

	// Session settings
	DataDir    string `yaml:"data_dir"`    // Platform data directory
	MaxContext int    `yaml:"max_context"` // Max messages loaded per iteration

	// Execution settings
	MaxIterations int `yaml:"max_iterations"` // Loop safety limit (default: 50)

	// Workspace context settings
	WorkspaceDir    string `yaml:"workspace_dir"`     // Project root packed into context (default: cwd)
	ContextMode     string `yaml:"context_mode"`      // full, smart, minimal (default: smart)
	TokenBudget     int    `yaml:"token_budget"`      // Context token budget (default: 24000)
	MaxContextFiles int    `yaml:"max_context_files"` // Max files packed in smart mode (default: 25)

	// Server settings
	Host string `yaml:"host"` // Bind address (default: 127.0.0.1)
	Port int    `yaml:"port"` // Listen port (default: 27910)
}

// ProviderConfig holds configuration for a single provider
type ProviderConfig struct {
	Name    string `yaml:"name"`               // Identifier for this provider
	APIKey  string `yaml:"api_key,omitempty"`  // For API providers
	Model   string `yaml:"model,omitempty"`    // Default model to use
	BaseURL string `yaml:"base_url,omitempty"` // For Ollama (default: http://localhost:11434)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Providers:       []ProviderConfig{}, // Loaded from models.yaml
		DataDir:         DefaultDataDir(),
		MaxContext:      50,
		MaxIterations:   50,
		ContextMode:     "smart",
		TokenBudget:     24000,
		MaxContextFiles: 25,
		Host:            "127.0.0.1",
		Port:            27910,
	}
}

// DefaultDataDir returns the platform-appropriate data directory
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hew"
	}
	return filepath.Join(home, ".hew")
}

// Load loads config from the data directory's config.yaml
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.loadProvidersFromModels()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.expandPaths()
	cfg.loadProvidersFromModels()
	return cfg, nil
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.expandPaths()
	cfg.loadProvidersFromModels()
	return cfg, nil
}

// expandPaths expands ~ prefixes in configured directories
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()
	if strings.HasPrefix(c.DataDir, "~/") {
		c.DataDir = filepath.Join(home, c.DataDir[2:])
	}
	if strings.HasPrefix(c.WorkspaceDir, "~/") {
		c.WorkspaceDir = filepath.Join(home, c.WorkspaceDir[2:])
	}
}

// Save saves the config to the data directory's config.yaml
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	return os.WriteFile(configPath, data, 0600)
}

// DBPath returns the path to the SQLite database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "hew.db")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// GetProvider returns the provider config by name, or nil if not found
func (c *Config) GetProvider(name string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i]
		}
	}
	return nil
}

// loadProvidersFromModels loads provider credentials from models.yaml
func (c *Config) loadProvidersFromModels() {
	provider.InitModelsStore(c.DataDir)

	creds := provider.GetAllCredentials()
	if len(creds) == 0 {
		return
	}

	for name, cred := range creds {
		// First active model becomes the provider default
		var model string
		for _, m := range provider.GetProviderModels(name) {
			if m.IsActive() {
				model = m.ID
				break
			}
		}

		c.Providers = append(c.Providers, ProviderConfig{
			Name:    name,
			APIKey:  os.ExpandEnv(cred.APIKey),
			Model:   model,
			BaseURL: os.ExpandEnv(cred.BaseURL),
		})
	}
}
