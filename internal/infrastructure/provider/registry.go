package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/synchub/backend/internal/domain/integration"
)

// Registry is an in-memory ProviderRegistry. Adapters register at startup;
// lookups are read-mostly and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]integration.ProviderAdapter
}

var _ integration.ProviderRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]integration.ProviderAdapter)}
}

// Register adds an adapter, replacing any previous adapter for the same
// (type, provider) pair
func (r *Registry) Register(adapter integration.ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[registryKey(adapter.Type(), adapter.Provider())] = adapter
}

// Get returns the adapter for the (type, provider) pair
func (r *Registry) Get(t integration.Type, provider string) (integration.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[registryKey(t, provider)]
	if !ok {
		return nil, integration.ErrProviderNotRegistered
	}
	return adapter, nil
}

// List returns all registered adapters in stable order
func (r *Registry) List() []integration.ProviderAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	adapters := make([]integration.ProviderAdapter, 0, len(keys))
	for _, k := range keys {
		adapters = append(adapters, r.adapters[k])
	}
	return adapters
}

func registryKey(t integration.Type, provider string) string {
	return fmt.Sprintf("%s/%s", t, provider)
}
