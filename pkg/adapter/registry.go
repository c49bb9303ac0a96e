package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory creates an unconnected store.
type Factory func(*slog.Logger) Source

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a store factory to the registry.
// Called by store implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a store factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewSource creates a store instance based on config type. The store is
// not connected yet. A nil logger uses a discard logger.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{
			Type:      cfg.Type,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// NewStore creates a store that can also hold result tables.
func NewStore(cfg Config, logger *slog.Logger) (Store, error) {
	src, err := NewSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, ok := src.(Store)
	if !ok {
		return nil, &ReadOnlyAdapterError{Type: cfg.Type}
	}
	return st, nil
}

// ListAdapters returns all registered adapter names (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if an adapter type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownAdapterError is returned when an unknown adapter type is requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: Check results.type in leapquery.yaml", e.Type, e.Available)
}

// ReadOnlyAdapterError is returned when a source-only adapter is asked to
// store results.
type ReadOnlyAdapterError struct {
	Type string
}

func (e *ReadOnlyAdapterError) Error() string {
	return fmt.Sprintf("adapter %q cannot store result tables", e.Type)
}
