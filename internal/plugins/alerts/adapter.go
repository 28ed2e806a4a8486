package alerts

import (
	"context"
	"fmt"
	"sort"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Alert is one matched rule being delivered for one record. Params are
// already rendered.
type Alert struct {
	RuleID   string
	RuleName string
	Record   *records.Record
	Params   map[string]string
}

// Adapter delivers alerts over one channel. Send returns an *AdapterError
// on failure; it must respect ctx and its own transport timeouts.
type Adapter interface {
	Name() string
	Fields() []Field
	Send(ctx context.Context, alert Alert) error
}

// UserDirectory resolves user IDs for templates and recipient lists.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
	Email(ctx context.Context, userID int64) (string, error)
}

// Registry holds the adapters available to actions. It is filled once
// during startup and only read afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Names must be unique.
func (r *Registry) Register(a Adapter) error {
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("alert adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter with the given name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// List returns all adapters sorted by name.
func (r *Registry) List() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
