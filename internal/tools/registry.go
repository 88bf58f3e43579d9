// Package tools holds the server-side tools the agent may call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fzzzy/aguitest/internal/domain"
)

// Result is the output of a tool execution. Events are emitted to the client
// right after the tool result.
type Result struct {
	Content string
	Events  []domain.Event
}

// ExecutorFunc defines a server-side tool executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (Result, error)

// Definition describes a tool to the model and binds its executor.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Executor    ExecutorFunc
}

// Registry stores tool definitions keyed by tool name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register adds a new tool definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("executor already registered for %s", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Definitions returns all registered tools sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	r.mu.RUnlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the executor for the tool name.
func (r *Registry) Execute(ctx context.Context, toolName string, args json.RawMessage) (Result, error) {
	if toolName == "" {
		return Result{}, fmt.Errorf("tool name is required")
	}
	r.mu.RLock()
	def, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("no executor registered for %s", toolName)
	}
	return def.Executor(ctx, args)
}
