// Package registry holds the action factories the dispatcher routes to and
// validates action configurations against their declared schemas.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/modernmen/pulse/pkg/protocol"
)

// Registry maps action kinds to their factories. New kinds are added by
// registering a factory, never by editing the engine.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]protocol.ActionFactory),
	}
}

// RegisterAction adds a factory under its own ID. A second registration for
// the same kind replaces the first.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.factories[factory.ID()] = factory
	r.logger.Debug("Registered action factory", "kind", factory.ID())
}

// CreateAction builds an action instance for the given kind.
func (r *Registry) CreateAction(kind string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("action kind %q not registered", kind)
	}

	return factory.Create(config)
}

// IsRegistered reports whether an action kind has a factory.
func (r *Registry) IsRegistered(kind string) bool {
	_, ok := r.factories[kind]

	return ok
}

// AvailableActions lists the registered action kinds.
func (r *Registry) AvailableActions() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}

	return kinds
}

// ValidateConfig checks an action configuration against the factory's JSON
// schema. Used at rule and template registration so malformed configs are
// rejected before any event arrives.
func (r *Registry) ValidateConfig(kind string, config map[string]any) error {
	factory, ok := r.factories[kind]
	if !ok {
		return fmt.Errorf("action kind %q not registered", kind)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema for %q: %w", kind, err)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("validate config for %q: %w", kind, err)
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			if detail != "" {
				detail += "; "
			}

			detail += desc.String()
		}

		return fmt.Errorf("invalid config for action %q: %s", kind, detail)
	}

	return nil
}
