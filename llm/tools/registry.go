package tools

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

// Registry holds the set of tools advertised to the model.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.logger.Info("tool registered", zap.String("name", name))
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}
	return t, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas returns the function-calling schemas for every registered
// tool, sorted by name for a stable request payload.
func (r *Registry) Schemas() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]types.ToolSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, BuildSchema(r.tools[name]))
	}
	return schemas
}
