package handler

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
)

var ErrHandlerNotExist = transport.NewRequestFailed("handler does not exist")

// Factory creates a handler instance bound to the queue
type Factory func(queue types.QueueInfo) Handler

// Definition describes a handler which can be assigned to a queue
type Definition struct {
	// ID is the handler id stored in QueueInfo.Handler
	ID string
	// Title is the human-readable name of the handler
	Title   string
	Factory Factory
}

// Registry holds the handlers known to the service. It is safe for concurrent use.
type Registry struct {
	defs map[string]Definition
	mu   sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// DefaultRegistry returns a registry with the 'simple' and 'multiple' handlers registered
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(Definition{ID: SimpleID, Title: "Simple queue", Factory: NewSimple})
	_ = r.Register(Definition{ID: MultipleID, Title: "Multiple subqueues", Factory: NewMultiple})
	return r
}

// Register adds the handler definition, replacing any definition with the same id
func (r *Registry) Register(d Definition) error {
	if strings.TrimSpace(d.ID) == "" {
		return transport.NewInvalidOption("handler id is invalid; cannot be empty")
	}
	if d.Factory == nil {
		return transport.NewInvalidOption("handler '%s' is invalid; factory cannot be nil", d.ID)
	}

	defer r.mu.Unlock()
	r.mu.Lock()
	r.defs[d.ID] = d
	return nil
}

// Has reports if a handler with the id is registered
func (r *Registry) Has(id string) bool {
	defer r.mu.RUnlock()
	r.mu.RLock()
	_, ok := r.defs[id]
	return ok
}

// Definitions returns the registered handlers ordered by id
func (r *Registry) Definitions() []Definition {
	defer r.mu.RUnlock()
	r.mu.RLock()

	ids := slices.Sorted(maps.Keys(r.defs))
	results := make([]Definition, 0, len(ids))
	for _, id := range ids {
		results = append(results, r.defs[id])
	}
	return results
}

// New returns an instance of the queue's handler bound to the queue. Returns ErrHandlerNotExist
// if the handler is not registered.
func (r *Registry) New(queue types.QueueInfo) (Handler, error) {
	r.mu.RLock()
	d, ok := r.defs[queue.Handler]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrHandlerNotExist
	}
	return d.Factory(queue.Clone()), nil
}
