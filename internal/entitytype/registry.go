package entitytype

import (
	"slices"
	"strings"
	"sync"

	"github.com/kapetan-io/entityqueue/transport"
)

var ErrEntityTypeNotExist = transport.NewRequestFailed("entity type does not exist")

// Definition describes a type of entity a queue can reference
type Definition struct {
	// ID is the entity type id, IE: 'node'
	ID string
	// Label is the human-readable name of the entity type
	Label string
	// Provider is the module which provides the entity type. A queue targeting this
	// entity type depends upon the provider.
	Provider string
}

// Defaults are the entity types registered when no entity types are configured
var Defaults = []Definition{
	{ID: "node", Label: "Content", Provider: "node"},
	{ID: "user", Label: "User", Provider: "user"},
	{ID: "taxonomy_term", Label: "Taxonomy term", Provider: "taxonomy"},
	{ID: "media", Label: "Media", Provider: "media"},
	{ID: "block_content", Label: "Custom block", Provider: "block_content"},
	{ID: "comment", Label: "Comment", Provider: "comment"},
}

// Registry is the set of entity types known to the service. It is safe for concurrent use.
type Registry struct {
	defs map[string]Definition
	mu   sync.RWMutex
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

// NewDefaultRegistry returns a registry populated with Defaults
func NewDefaultRegistry() *Registry {
	return NewRegistry(Defaults...)
}

// Register adds or replaces an entity type definition
func (r *Registry) Register(d Definition) error {
	if strings.TrimSpace(d.ID) == "" {
		return transport.NewInvalidOption("entity type id is invalid; cannot be empty")
	}
	if strings.TrimSpace(d.Provider) == "" {
		return transport.NewInvalidOption("entity type '%s' is invalid; provider cannot be empty", d.ID)
	}

	defer r.mu.Unlock()
	r.mu.Lock()
	r.defs[d.ID] = d
	return nil
}

// Definition returns the definition for the entity type id or ErrEntityTypeNotExist
func (r *Registry) Definition(id string) (Definition, error) {
	defer r.mu.RUnlock()
	r.mu.RLock()

	d, ok := r.defs[id]
	if !ok {
		return Definition{}, ErrEntityTypeNotExist
	}
	return d, nil
}

// Definitions returns all registered entity types ordered by id
func (r *Registry) Definitions() []Definition {
	defer r.mu.RUnlock()
	r.mu.RLock()

	results := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		results = append(results, d)
	}
	slices.SortFunc(results, func(a, b Definition) int {
		return strings.Compare(a.ID, b.ID)
	})
	return results
}

// Unregister removes every entity type provided by the module and returns the removed ids
func (r *Registry) Unregister(provider string) []string {
	defer r.mu.Unlock()
	r.mu.Lock()

	var removed []string
	for id, d := range r.defs {
		if d.Provider == provider {
			removed = append(removed, id)
			delete(r.defs, id)
		}
	}
	slices.Sort(removed)
	return removed
}
