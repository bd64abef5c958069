package tool

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps tool names to descriptors. It is filled once at startup and
// only read afterwards; the lock makes late registration safe, not expected.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]registered
}

type registered struct {
	desc  Descriptor
	input *inputSchema
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds d. Names must be unique, every descriptor needs an execute
// func, and the input schema must resolve. A nil schema means no arguments.
func (r *Registry) Register(d Descriptor) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.Execute == nil {
		return fmt.Errorf("%w: %s has no execute func", ErrInvalidDescriptor, name)
	}
	d.Name = name
	if d.InputSchema == nil {
		d.InputSchema = Empty()
	}
	input, err := compileSchema(d.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: %s schema: %v", ErrInvalidDescriptor, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = registered{desc: d, input: input}
	r.order = append(r.order, name)
	return nil
}

// RegisterAll registers each descriptor, stopping at the first failure.
func (r *Registry) RegisterAll(descriptors ...Descriptor) error {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.desc, ok
}

func (r *Registry) lookup(name string) (registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry, ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
