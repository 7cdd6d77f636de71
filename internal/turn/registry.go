package turn

import (
	"log/slog"
	"sync"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// Interceptor wraps a handler invocation for one tool name. next invokes
// the gate-acquire-and-handle path; an interceptor may call next, skip it,
// or call it multiple times, but per spec.md §4.4/§9 only the first
// registered interceptor for a name is ever applied (chains are
// deliberately flat).
type Interceptor func(next func() (llm.ToolOutput, error), inv *ToolInvocation) (llm.ToolOutput, error)

type registryEntry struct {
	spec    ToolSpec
	handler ToolHandler
}

// Registry is the immutable, built tool table: name -> (spec, handler),
// plus at most one interceptor per name.
type Registry struct {
	entries      map[string]registryEntry
	interceptors map[string]Interceptor
	specs        []ToolSpec
}

// Specs returns the ordered list of specs to advertise to the model.
func (r *Registry) Specs() []ToolSpec { return r.specs }

// Lookup returns the (spec, handler) pair registered for name.
func (r *Registry) Lookup(name string) (ToolSpec, ToolHandler, bool) {
	e, ok := r.entries[name]
	if !ok {
		return ToolSpec{}, nil, false
	}
	return e.spec, e.handler, true
}

// Interceptor returns the first (only) interceptor registered for name, if
// any.
func (r *Registry) Interceptor(name string) (Interceptor, bool) {
	ic, ok := r.interceptors[name]
	return ic, ok
}

// --- process-wide pending-external registration slots ---
//
// spec.md §4.4/§9: the registry builder drains a process-wide "pending
// external tools" slot and a "pending external interceptors" slot,
// populated by the host before building, so external registrations
// (e.g. a CLI flag that loads a user-supplied tool plugin) compose with
// built-ins without threading an extra parameter through every
// constructor in the call chain. A future rewrite should prefer passing
// these explicitly through the Builder instead; this module retains the
// drain step for compatibility with that documented baseline.

var pendingMu sync.Mutex
var pendingTools []pendingTool
var pendingInterceptors []pendingInterceptor

type pendingTool struct {
	name    string
	spec    ToolSpec
	handler ToolHandler
}

type pendingInterceptor struct {
	name        string
	interceptor Interceptor
}

// RegisterPendingTool adds a tool to the process-wide slot the next
// registry Build() drains. Intended for host code that discovers tools
// outside the normal config-driven registration path (e.g. a dynamically
// loaded plugin).
func RegisterPendingTool(name string, spec ToolSpec, handler ToolHandler) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	pendingTools = append(pendingTools, pendingTool{name: name, spec: spec, handler: handler})
}

// RegisterPendingInterceptor adds an interceptor to the process-wide slot
// the next registry Build() drains.
func RegisterPendingInterceptor(name string, interceptor Interceptor) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	pendingInterceptors = append(pendingInterceptors, pendingInterceptor{name: name, interceptor: interceptor})
}

func drainPending() ([]pendingTool, []pendingInterceptor) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	tools := pendingTools
	interceptors := pendingInterceptors
	pendingTools = nil
	pendingInterceptors = nil
	return tools, interceptors
}

// Builder accumulates (spec, handler) tuples and interceptor registrations
// before producing an immutable Registry.
type Builder struct {
	entries      map[string]registryEntry
	interceptors map[string]Interceptor
	order        []string
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		entries:      make(map[string]registryEntry),
		interceptors: make(map[string]Interceptor),
	}
}

// AddTool registers a built-in (or host-provided) tool. Duplicate
// registration for the same name logs a warning; the later registration
// wins, per spec.md §4.4.
func (b *Builder) AddTool(name string, spec ToolSpec, handler ToolHandler) {
	if _, exists := b.entries[name]; exists {
		slog.Warn("tool registered twice, later registration wins", "tool", name)
	} else {
		b.order = append(b.order, name)
	}
	b.entries[name] = registryEntry{spec: spec, handler: handler}
}

// AddInterceptor registers an interceptor for name. Only the first
// registration for a given name takes effect; subsequent calls are ignored
// with a warning, matching the "flat, first-only" composition rule.
func (b *Builder) AddInterceptor(name string, interceptor Interceptor) {
	if _, exists := b.interceptors[name]; exists {
		slog.Warn("interceptor already registered for tool, ignoring later registration", "tool", name)
		return
	}
	b.interceptors[name] = interceptor
}

// Build drains the process-wide pending slots into the builder's
// accumulated state and produces the immutable Registry. An empty pending
// slot yields a registry identical to a builder with no external tools
// (spec.md §8's boundary-behavior property).
func (b *Builder) Build() *Registry {
	tools, interceptors := drainPending()
	for _, t := range tools {
		b.AddTool(t.name, t.spec, t.handler)
	}
	for _, ic := range interceptors {
		b.AddInterceptor(ic.name, ic.interceptor)
	}

	specs := make([]ToolSpec, 0, len(b.order))
	for _, name := range b.order {
		specs = append(specs, b.entries[name].spec)
	}

	entries := make(map[string]registryEntry, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	interceptorsCopy := make(map[string]Interceptor, len(b.interceptors))
	for k, v := range b.interceptors {
		interceptorsCopy[k] = v
	}

	return &Registry{entries: entries, interceptors: interceptorsCopy, specs: specs}
}
