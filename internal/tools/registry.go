// Package tools implements the tenant-facing tool catalogue (C7): the
// nine CRM-backed functions the LLM may call during a dialogue, a
// thread-safe registry, and JSON-Schema argument validation ahead of
// dispatch. Grounded on the teacher's agent.ToolRegistry (map-backed,
// mutex-protected, with name/size limits on Execute).
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/convoyhq/convoy/internal/crm"
	"github.com/convoyhq/convoy/internal/llm"
)

// Limits mirror the teacher's agent.ToolRegistry constants — kept
// identical because the same resource-exhaustion concern applies.
const (
	MaxToolNameLength = 256
	MaxArgsSize       = 10 << 20
)

// Result is one tool execution's outcome, mirrored onto
// models.FunctionResult by the orchestrator.
type Result struct {
	Content json.RawMessage
	IsError bool
	Message string
}

// Tool is one callable function in the catalogue. Execute receives the
// tenant's bound CRM adapter so a single Tool implementation serves
// every tenant regardless of which vendor they're bound to.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, adapter crm.Adapter, args map[string]any) (*Result, error)
}

// Registry is the thread-safe, name-keyed tool catalogue.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry builds a registry pre-populated with the nine mandatory
// booking tools (§4.7).
func NewRegistry() *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, t := range defaultTools() {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool, compiling its schema eagerly so
// Execute never pays compilation cost on the hot path.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	if compiled, err := compileSchema(t.Name(), t.Schema()); err == nil {
		r.schemas[t.Name()] = compiled
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Export returns the catalogue as llm.ToolSpec values, ready to pass
// into a Generate request.
func (r *Registry) Export() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// Execute validates args against the tool's schema and dispatches to
// it. Errors at any stage become an {error} Result rather than a Go
// error, per §7: no exception reaches the LLM loop.
func (r *Registry) Execute(ctx context.Context, adapter crm.Adapter, name string, args map[string]any) (*Result, error) {
	if len(name) > MaxToolNameLength {
		return &Result{IsError: true, Message: fmt.Sprintf("tool name exceeds %d characters", MaxToolNameLength)}, nil
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &Result{IsError: true, Message: "unknown tool: " + name}, nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return &Result{IsError: true, Message: "could not encode arguments"}, nil
	}
	if len(raw) > MaxArgsSize {
		return &Result{IsError: true, Message: fmt.Sprintf("arguments exceed %d bytes", MaxArgsSize)}, nil
	}
	if schema != nil {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			if err := schema.Validate(decoded); err != nil {
				return &Result{IsError: true, Message: fmt.Sprintf("invalid arguments: %v", err)}, nil
			}
		}
	}

	res, err := t.Execute(ctx, adapter, args)
	if err != nil {
		return &Result{IsError: true, Message: err.Error()}, nil
	}
	return res, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
