// internal/plugin/registry.go
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"bnc-service/pkg/plugin"
)

// Factory creates a plugin instance
type Factory func(opts Options) (plugin.Plugin, error)

// Registry manages plugin registration and creation
type Registry struct {
	factories map[plugin.Kind]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates a new plugin registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		factories: make(map[plugin.Kind]Factory),
		logger:    logger,
	}
}

// Register registers a plugin factory
func (r *Registry) Register(kind plugin.Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = factory
	r.logger.Info("Plugin registered", zap.String("kind", string(kind)))
}

// Create creates a plugin instance
func (r *Registry) Create(kind plugin.Kind, opts Options) (plugin.Plugin, error) {
	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	return factory(opts)
}

// Kinds returns all registered plugin kinds, sorted
func (r *Registry) Kinds() []plugin.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]plugin.Kind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsSupported checks if a kind is registered
func (r *Registry) IsSupported(kind plugin.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[kind]
	return exists
}

// RegisterDefaultPlugins registers the BNC 575 viewer and mover
func RegisterDefaultPlugins(registry *Registry, logger *zap.Logger) {
	registry.Register(plugin.KindViewer, func(opts Options) (plugin.Plugin, error) {
		return NewViewer(opts)
	})
	registry.Register(plugin.KindMove, func(opts Options) (plugin.Plugin, error) {
		return NewMover(opts)
	})

	logger.Info("BNC 575 plugins registered", zap.Int("kinds", 2))
}
