package mcpservice

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/ggoodman/mcp-toolhost-go/mcp"
)

// Registry owns the set of tools exposed by a server, keyed by name.
//
// Registering a tool under an existing name replaces the previous one. There
// is no removal. Reads proceed concurrently; each write is exclusive. The
// zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	log        *slog.Logger
	onRegister func(name string, replaced bool)
	changes    ChangeNotifier
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to record registrations.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithOnRegister installs a hook invoked after every insertion, outside the
// registry lock.
func WithOnRegister(fn func(name string, replaced bool)) RegistryOption {
	return func(r *Registry) { r.onRegister = fn }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}
	name := tool.Name()

	r.mu.Lock()
	_, replaced := r.tools[name]
	r.tools[name] = tool
	r.mu.Unlock()

	r.log.LogAttrs(context.Background(), slog.LevelDebug, "registry.register",
		slog.String("tool", name),
		slog.Bool("replaced", replaced),
	)
	if r.onRegister != nil {
		r.onRegister(name, replaced)
	}
	r.changes.Notify()
}

// Subscribe returns a channel signalled after registrations, and a function
// to stop the subscription.
func (r *Registry) Subscribe() (<-chan struct{}, func()) {
	return r.changes.Subscribe()
}

// RegisterMany registers each tool in order; later duplicates win.
func (r *Registry) RegisterMany(tools ...Tool) {
	for _, t := range tools {
		r.Register(t)
	}
}

// RegisterProvider registers every tool the provider exposes.
func (r *Registry) RegisterProvider(p ToolProvider) {
	if p == nil {
		return
	}
	r.RegisterMany(p.Tools()...)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns a snapshot of every tool descriptor ordered by name.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Describe())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted names of every registered tool.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
