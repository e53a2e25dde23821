package storage

import "fmt"

// Factory creates a storage adapter from a validated config.
type Factory func(config StorageConfig) (Storage, error)

// StorageConfig is implemented by each adapter's config type.
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

var factories = map[string]Factory{}

// RegisterFactory registers an adapter factory under a storage type name.
// Adapters register themselves from the wiring layer to avoid import cycles.
func RegisterFactory(storageType string, factory Factory) {
	factories[storageType] = factory
}

// New creates a storage adapter for the config's type.
func New(config StorageConfig) (Storage, error) {
	factory, ok := factories[config.GetType()]
	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", config.GetType())
	}
	return factory(config)
}
