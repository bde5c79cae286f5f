package cli

import (
	"fmt"
	"os"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/runner"
	"github.com/hewlab/hew/internal/agent/session"
	"github.com/hewlab/hew/internal/agent/tools"
	"github.com/hewlab/hew/internal/config"
	"github.com/hewlab/hew/internal/db"
	"github.com/hewlab/hew/internal/logging"
	"github.com/hewlab/hew/internal/provider"
)

// runtime holds the wired host components shared by all commands
type runtime struct {
	cfg      *config.Config
	store    *db.Store
	sessions *session.Manager
	router   *ai.Router
	registry *tools.Registry
	runner   *runner.Runner
}

func (rt *runtime) close() {
	if rt.store != nil {
		rt.store.Close()
	}
}

// loadHostConfig resolves the configuration for a command invocation.
// The --config flag wins over the config loaded by main.
func loadHostConfig() *config.Config {
	if cfgFile != "" {
		c, err := config.LoadFrom(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
		return c
	}
	if hostConfig != nil {
		return hostConfig
	}
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// initRuntime opens the database and wires providers, tools and the
// runner together. Callers own the returned runtime and must close it.
func initRuntime(cfg *config.Config) (*runtime, error) {
	if !verbose {
		logging.Disable()
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("initializing data directory: %w", err)
	}

	store, err := db.NewSQLite(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sessions, err := session.New(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing sessions: %w", err)
	}

	router := ai.NewRouter()
	for _, p := range createProviders(cfg) {
		router.Register(p)
	}
	if len(router.Providers()) == 0 {
		store.Close()
		return nil, fmt.Errorf("no providers configured: set ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY, start Ollama, or add credentials to %s", provider.GetModelsFilePath())
	}

	// models.yaml defaults pick the default provider when set
	if primary := provider.GetDefaultModel(); primary != "" {
		if providerID, _ := provider.SplitModelID(primary); providerID != "" {
			if err := router.SetDefault(providerID); err != nil {
				logging.Warnf("[cli] default model names unknown provider %q", providerID)
			}
		}
	}

	registry := tools.NewRegistry()
	registry.RegisterDefaults()

	return &runtime{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		router:   router,
		registry: registry,
		runner:   runner.New(cfg, sessions, router, registry),
	}, nil
}

// createProviders builds provider adapters from config credentials,
// falling back to environment variables and a local Ollama daemon.
func createProviders(cfg *config.Config) []ai.Provider {
	var providers []ai.Provider
	seen := make(map[string]bool)

	for _, pc := range cfg.Providers {
		switch pc.Name {
		case "anthropic":
			if pc.APIKey != "" {
				providers = append(providers, ai.NewAnthropicProvider(pc.APIKey, pc.Model))
				seen["anthropic"] = true
			}
		case "openai":
			if pc.APIKey != "" {
				providers = append(providers, ai.NewOpenAIProvider(pc.APIKey, pc.Model))
				seen["openai"] = true
			}
		case "gemini", "google":
			if pc.APIKey != "" {
				providers = append(providers, ai.NewGeminiProvider(pc.APIKey, pc.Model))
				seen["gemini"] = true
			}
		case "ollama":
			baseURL := pc.BaseURL
			if baseURL == "" {
				baseURL = "http://localhost:11434"
			}
			if ai.CheckOllamaAvailable(baseURL) {
				providers = append(providers, ai.NewOllamaProvider(baseURL, pc.Model))
				seen["ollama"] = true
			}
		default:
			logging.Warnf("[cli] unknown provider in config: %s", pc.Name)
		}
	}

	// Environment fallbacks for providers not in models.yaml
	if !seen["anthropic"] {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			providers = append(providers, ai.NewAnthropicProvider(key, ""))
		}
	}
	if !seen["openai"] {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			providers = append(providers, ai.NewOpenAIProvider(key, ""))
		}
	}
	if !seen["gemini"] {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			providers = append(providers, ai.NewGeminiProvider(key, ""))
		}
	}
	if !seen["ollama"] {
		if ai.CheckOllamaAvailable("http://localhost:11434") {
			providers = append(providers, ai.NewOllamaProvider("http://localhost:11434", ""))
		}
	}

	return providers
}
