package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/hewlab/hew/internal/logging"
)

// ModelPricing describes pricing per million tokens
type ModelPricing struct {
	Input  float64 `json:"input,omitempty" yaml:"input,omitempty"`   // $ per 1M input tokens
	Output float64 `json:"output,omitempty" yaml:"output,omitempty"` // $ per 1M output tokens
}

// ModelInfo describes an AI model
type ModelInfo struct {
	ID            string        `json:"id" yaml:"id"`
	DisplayName   string        `json:"displayName" yaml:"displayName"`
	ContextWindow int           `json:"contextWindow" yaml:"contextWindow"`
	Pricing       *ModelPricing `json:"pricing,omitempty" yaml:"pricing,omitempty"`
	Capabilities  []string      `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Active        *bool         `json:"active,omitempty" yaml:"active,omitempty"` // nil = true (default active)
}

// IsActive returns whether the model is active (defaults to true)
func (m *ModelInfo) IsActive() bool {
	if m.Active == nil {
		return true
	}
	return *m.Active
}

// ProviderCredentials holds API credentials for a provider
type ProviderCredentials struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"base_url,omitempty"` // For Ollama or custom endpoints
}

// Defaults defines default model selection
type Defaults struct {
	Primary   string   `yaml:"primary" json:"primary"`
	Fallbacks []string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
}

// ModelsConfig is the YAML structure for storing provider models
type ModelsConfig struct {
	Version     string                         `yaml:"version"`
	UpdatedAt   string                         `yaml:"updatedAt"`
	Credentials map[string]ProviderCredentials `yaml:"credentials,omitempty"`
	Defaults    *Defaults                      `yaml:"defaults,omitempty"`
	Providers   map[string][]ModelInfo         `yaml:"providers"`
}

// Singleton instance
var (
	modelsInstance *ModelsConfig
	modelsOnce     sync.Once
	modelsMu       sync.RWMutex
	modelsFilePath string

	// File watcher
	configWatcher   *fsnotify.Watcher
	reloadCallbacks []func(*ModelsConfig)
	callbacksMu     sync.RWMutex
)

// InitModelsStore sets up the models YAML file path and loads the singleton
func InitModelsStore(dataDir string) {
	modelsFilePath = filepath.Join(dataDir, "models.yaml")
	ReloadModels()
}

// GetModelsFilePath returns the current models file path
func GetModelsFilePath() string {
	if modelsFilePath == "" {
		home, _ := os.UserHomeDir()
		modelsFilePath = filepath.Join(home, ".hew", "models.yaml")
	}
	return modelsFilePath
}

// GetModelsConfig returns the singleton instance, loading from YAML on first call
func GetModelsConfig() *ModelsConfig {
	modelsOnce.Do(func() {
		modelsInstance = loadFromYAML()
	})
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	return modelsInstance
}

// ReloadModels reloads the config from YAML (call when file changes)
func ReloadModels() {
	modelsMu.Lock()
	modelsInstance = loadFromYAML()
	modelsMu.Unlock()

	callbacksMu.RLock()
	callbacks := make([]func(*ModelsConfig), len(reloadCallbacks))
	copy(callbacks, reloadCallbacks)
	callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(modelsInstance)
	}
}

// OnConfigReload registers a callback to be called when the config is reloaded
func OnConfigReload(callback func(*ModelsConfig)) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	reloadCallbacks = append(reloadCallbacks, callback)
}

// StartConfigWatcher starts watching the data directory for models.yaml changes
func StartConfigWatcher(dataDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	configWatcher = watcher

	if err := watcher.Add(dataDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dataDir, err)
	}

	go func() {
		var debounceTimer *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "models.yaml" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Debounce: editors may write multiple times in quick succession
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
						logging.Infof("[config] models.yaml changed, reloading")
						ReloadModels()
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("[config] watcher error: %v", err)
			}
		}
	}()

	logging.Infof("[config] watching %s for changes", dataDir)
	return nil
}

// StopConfigWatcher stops the file watcher
func StopConfigWatcher() {
	if configWatcher != nil {
		configWatcher.Close()
		configWatcher = nil
	}
}

// loadFromYAML reads the models file, returning an empty config if absent
func loadFromYAML() *ModelsConfig {
	path := GetModelsFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return &ModelsConfig{
			Version:   "1.0",
			Providers: map[string][]ModelInfo{},
		}
	}

	var cfg ModelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logging.Warnf("[config] failed to parse %s: %v", path, err)
		return &ModelsConfig{
			Version:   "1.0",
			Providers: map[string][]ModelInfo{},
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string][]ModelInfo{}
	}
	return &cfg
}

// GetProviderModels returns the active models for a provider
func GetProviderModels(name string) []ModelInfo {
	cfg := GetModelsConfig()
	modelsMu.RLock()
	defer modelsMu.RUnlock()

	models := make([]ModelInfo, 0, len(cfg.Providers[name]))
	for _, m := range cfg.Providers[name] {
		if m.IsActive() {
			models = append(models, m)
		}
	}
	return models
}

// GetAllCredentials returns the credential map from models.yaml
func GetAllCredentials() map[string]ProviderCredentials {
	cfg := GetModelsConfig()
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	return cfg.Credentials
}

// GetDefaultModel returns the configured primary model ID ("provider/model"),
// or empty string if none is configured.
func GetDefaultModel() string {
	cfg := GetModelsConfig()
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	if cfg.Defaults != nil {
		return cfg.Defaults.Primary
	}
	return ""
}

// SplitModelID splits a "provider/model" ID into its parts.
// An ID without a slash is treated as a bare provider name.
func SplitModelID(id string) (providerName, modelName string) {
	if i := strings.Index(id, "/"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}
