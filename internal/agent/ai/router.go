package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hewlab/hew/internal/logging"
)

// Router dispatches chat requests to registered providers. Requests
// naming an unknown provider fall back to the default silently; the
// caller never sees a routing error for a typo'd provider name.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string // registration order, for stable iteration
	defaultID string
}

// NewRouter creates an empty router. The first registered provider
// becomes the default unless SetDefault overrides it.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Re-registering an ID replaces the previous
// provider under that ID.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.providers[id]; !exists {
		r.order = append(r.order, id)
	}
	r.providers[id] = p
	if r.defaultID == "" {
		r.defaultID = id
	}
}

// SetDefault selects the fallback provider for unknown or empty IDs
func (r *Router) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("unknown provider %q", id)
	}
	r.defaultID = id
	return nil
}

// Provider returns the provider for id, falling back to the default
// when id is empty or unknown.
func (r *Router) Provider(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[id]; ok {
		return p, nil
	}
	if id != "" {
		logging.Warnf("[router] unknown provider %q, using default %q", id, r.defaultID)
	}
	if p, ok := r.providers[r.defaultID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no providers registered")
}

// Providers returns the registered providers in registration order
func (r *Router) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// ChatStream resolves the provider, trims history for its cost model,
// and opens a stream. Transport failures come back wrapped in a
// ProviderError naming the provider that failed.
func (r *Router) ChatStream(ctx context.Context, providerID string, req *ChatRequest) (<-chan StreamEvent, error) {
	p, err := r.Provider(providerID)
	if err != nil {
		return nil, err
	}

	optimized := *req
	optimized.Messages = OptimizeHistory(p.ID(), req.Messages)

	events, err := p.Stream(ctx, &optimized)
	if err != nil {
		return nil, NewProviderError(p.ID(), err)
	}
	return events, nil
}

// Cancel aborts in-flight streams on every provider. Idempotent.
func (r *Router) Cancel() {
	for _, p := range r.Providers() {
		p.Cancel()
	}
}

// ListModels queries every provider in parallel and merges the results.
// A provider that fails is skipped with a warning; the call only errors
// when no providers are registered at all.
func (r *Router) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	providers := r.Providers()
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers registered")
	}

	var (
		mu     sync.Mutex
		merged []ModelDescriptor
		wg     sync.WaitGroup
	)

	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			models, err := p.ListModels(ctx)
			if err != nil {
				logging.Warnf("[router] listing models for %s failed: %v", p.ID(), err)
				return
			}
			mu.Lock()
			merged = append(merged, models...)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Provider != merged[j].Provider {
			return merged[i].Provider < merged[j].Provider
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, nil
}
