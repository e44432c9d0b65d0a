package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Registry maps source names to their implementations.
type Registry struct {
	sources map[string]Source
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry. Registering a name twice
// replaces the earlier source but keeps its position.
func (r *Registry) Register(s Source) {
	name := s.Name()
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("ingest: unknown source %q (known: %s)", name, strings.Join(r.AllNames(), ", "))
	}
	return s, nil
}

// Select returns the named sources in registration order, or every source
// when names is empty.
func (r *Registry) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, err := r.Get(n); err != nil {
			return nil, err
		}
		want[n] = true
	}
	var out []Source
	for _, name := range r.order {
		if want[name] {
			out = append(out, r.sources[name])
		}
	}
	return out, nil
}

// All returns all sources in registration order.
func (r *Registry) All() []Source {
	result := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sources[name])
	}
	return result
}

// AllNames returns all registered source names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
