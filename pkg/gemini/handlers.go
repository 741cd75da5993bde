package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one declared function. It receives its own copy of the
// arguments and may modify it freely. Handlers can be invoked from several
// exchanges at once and must be safe for concurrent use.
type Handler interface {
	Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return f(ctx, args)
}

// TypedHandler decodes the arguments into A and encodes the result R.
// Missing arguments decode as the zero A.
func TypedHandler[A, R any](fn func(ctx context.Context, args A) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return out, nil
	})
}

// HandlerLookup resolves function names to handlers. The orchestrator only
// reads from it.
type HandlerLookup interface {
	Handler(name string) (Handler, bool)
}

// Handlers is a plain name to handler map.
type Handlers map[string]Handler

func (h Handlers) Handler(name string) (Handler, bool) {
	fn, ok := h[name]
	return fn, ok
}

// Registry is a HandlerLookup that can be filled while other goroutines
// are running exchanges against it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	decls    map[string]FunctionDeclaration
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		decls:    make(map[string]FunctionDeclaration),
	}
}

// Register adds a handler under decl.Name.
func (r *Registry) Register(decl FunctionDeclaration, h Handler) error {
	if decl.Name == "" {
		return fmt.Errorf("function declaration has no name")
	}
	if h == nil {
		return fmt.Errorf("function %s: nil handler", decl.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[decl.Name]; exists {
		return fmt.Errorf("function %s already registered", decl.Name)
	}
	r.handlers[decl.Name] = h
	r.decls[decl.Name] = decl
	return nil
}

// Unregister removes a handler.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		return fmt.Errorf("function %s not found", name)
	}
	delete(r.handlers, name)
	delete(r.decls, name)
	return nil
}

func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Handler(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tool returns a function-declarations tool listing every registered
// function, in name order.
func (r *Registry) Tool() FunctionDeclarationsTool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]FunctionDeclaration, 0, len(names))
	for _, name := range names {
		if d, ok := r.decls[name]; ok {
			decls = append(decls, d)
		}
	}
	return NewFunctionTool(decls...)
}
