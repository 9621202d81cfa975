// Package registry provides executor factory registration and node
// configuration validation.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/runweave/runweave/pkg/protocol"
)

// Registry holds the executor factories available to the engine.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ExecutorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.ExecutorFactory),
	}
}

// Register adds an executor factory. A factory registered twice under the
// same ID overwrites the earlier one.
func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.factories[factory.ID()] = factory
}

// Create validates the config against the factory schema and builds an
// executor instance.
func (r *Registry) Create(ctx context.Context, executorType, nodeID string, config map[string]any) (protocol.NodeExecutor, error) {
	factory, ok := r.factories[executorType]
	if !ok {
		return nil, fmt.Errorf("executor type '%s' not registered", executorType)
	}

	if config == nil {
		config = make(map[string]any)
	}

	err := validateConfig(config, factory.Schema())
	if err != nil {
		return nil, fmt.Errorf("invalid config for executor type '%s': %w", executorType, err)
	}

	return factory.Create(ctx, nodeID, config)
}

// Available returns the registered executor type IDs.
func (r *Registry) Available() []string {
	types := make([]string, 0, len(r.factories))
	for executorType := range r.factories {
		types = append(types, executorType)
	}

	return types
}

// IsRegistered checks if an executor type is registered.
func (r *Registry) IsRegistered(executorType string) bool {
	_, exists := r.factories[executorType]

	return exists
}

// validateConfig validates node configuration against the factory schema.
func validateConfig(config map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
