// Package registry resolves storage backends and processors by name. This enables
// runtime selection from CLI flags without if/else chains in main code.
package registry

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/tabflow/tabflow/pkg/config"
	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/table"
)

// StorageFactory opens a storage backend.
type StorageFactory func(ctx context.Context, cfg config.StorageConfig) (core.Storage, error)

// ProcessorFactory builds a processor from the colon-separated arguments of a
// processor spec ("where:age:gte:30" passes ["age", "gte", "30"]).
type ProcessorFactory func(args []string) (table.Processor, error)

// Registry holds all registered backends and processors.
type Registry struct {
	mu sync.RWMutex

	storages   map[string]StorageFactory
	processors map[string]ProcessorFactory
}

// Global default registry
var defaultRegistry = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		storages:   make(map[string]StorageFactory),
		processors: make(map[string]ProcessorFactory),
	}
}

// RegisterStorage adds a storage factory to the registry.
func (r *Registry) RegisterStorage(name string, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storages[name] = factory
}

// RegisterProcessor adds a processor factory to the registry.
func (r *Registry) RegisterProcessor(name string, factory ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = factory
}

// OpenStorage opens the named backend.
func (r *Registry) OpenStorage(ctx context.Context, name string, cfg config.StorageConfig) (core.Storage, error) {
	r.mu.RLock()
	factory, ok := r.storages[name]
	r.mu.RUnlock()

	if !ok {
		return nil, tferrors.Newf(tferrors.CodeStorage, "unknown storage backend: %s", name)
	}
	return factory(ctx, cfg)
}

// Processor builds a processor from a spec of the form "name:arg:arg".
func (r *Registry) Processor(spec string) (table.Processor, error) {
	name, rest, _ := strings.Cut(spec, ":")
	var args []string
	if rest != "" {
		args = strings.Split(rest, ":")
	}

	r.mu.RLock()
	factory, ok := r.processors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, tferrors.Newf(tferrors.CodeSchemaValidation, "unknown processor: %s", name)
	}
	p, err := factory(args)
	if err != nil {
		var te *tferrors.Error
		if !errors.As(err, &te) {
			err = tferrors.Wrap(err, tferrors.CodeSchemaValidation, "invalid processor spec")
		}
		return nil, err
	}
	return p, nil
}

// Processors builds processors from several specs, in order.
func (r *Registry) Processors(specs []string) ([]table.Processor, error) {
	out := make([]table.Processor, 0, len(specs))
	for _, spec := range specs {
		p, err := r.Processor(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListStorages returns all registered backend names, sorted.
func (r *Registry) ListStorages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.storages))
	for name := range r.storages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListProcessors returns all registered processor names, sorted.
func (r *Registry) ListProcessors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// --- Global registry functions ---

// Default returns the default registry.
func Default() *Registry { return defaultRegistry }

// RegisterStorage adds a storage backend to the default registry.
func RegisterStorage(name string, factory StorageFactory) {
	defaultRegistry.RegisterStorage(name, factory)
}

// RegisterProcessor adds a processor to the default registry.
func RegisterProcessor(name string, factory ProcessorFactory) {
	defaultRegistry.RegisterProcessor(name, factory)
}

// OpenStorage opens a backend from the default registry.
func OpenStorage(ctx context.Context, name string, cfg config.StorageConfig) (core.Storage, error) {
	return defaultRegistry.OpenStorage(ctx, name, cfg)
}

// Processors builds processors from the default registry.
func Processors(specs []string) ([]table.Processor, error) {
	return defaultRegistry.Processors(specs)
}
