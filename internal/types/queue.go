package types

import (
	"maps"
	"slices"

	"github.com/kapetan-io/tackle/clock"
)

// ModuleName is the module recorded as the owner of subqueues this service creates
const ModuleName = "entityqueue"

// QueueInfo is the stored configuration of a queue. It is a bundle definition; the
// subqueues which hold the actual references are entities of this bundle.
type QueueInfo struct {
	// ID is the machine name of the queue, it is also the bundle name of its subqueues
	ID string
	// UUID is a unique id assigned when the queue is first saved
	UUID string
	// Label is the human-readable name of the queue
	Label string
	// Status is true if the queue is enabled
	Status bool
	// TargetType is the entity type id of the items this queue references, IE: 'node'
	TargetType string
	// MinSize is the minimum number of items a subqueue of this queue can hold
	MinSize int
	// MaxSize is the maximum number of items a subqueue of this queue can hold, zero is unlimited
	MaxSize int
	// ActAsQueue selects FIFO eviction instead of rejection once a subqueue reaches MaxSize
	ActAsQueue bool
	// Handler is the id of the registered handler which manages this queue
	Handler string
	// HandlerConfiguration is the configuration passed to the handler upon creation
	HandlerConfiguration map[string]string
	// Dependencies is calculated each time the queue is saved
	Dependencies Dependencies
	// CreatedAt is the time the queue was first saved
	CreatedAt clock.Time
	// UpdatedAt is the time the queue was last saved
	UpdatedAt clock.Time
}

// Update copies the exported configuration from r into i. Fields which are owned by storage
// (UUID, CreatedAt) are left untouched.
func (i *QueueInfo) Update(r QueueInfo) {
	i.Label = r.Label
	i.Status = r.Status
	i.TargetType = r.TargetType
	i.MinSize = r.MinSize
	i.MaxSize = r.MaxSize
	i.ActAsQueue = r.ActAsQueue
	i.Handler = r.Handler
	i.HandlerConfiguration = maps.Clone(r.HandlerConfiguration)
	i.Dependencies = r.Dependencies.Clone()
	i.UpdatedAt = r.UpdatedAt
}

// Clone returns a deep copy of the QueueInfo
func (i QueueInfo) Clone() QueueInfo {
	i.HandlerConfiguration = maps.Clone(i.HandlerConfiguration)
	i.Dependencies = i.Dependencies.Clone()
	return i
}

// Dependencies lists the things a queue depends upon. The service refuses to remove a
// module while a queue lists it here.
type Dependencies struct {
	Module []string
}

// AddModule adds the module to the list of dependencies if it does not already exist
func (d *Dependencies) AddModule(name string) {
	if name == "" || slices.Contains(d.Module, name) {
		return
	}
	d.Module = append(d.Module, name)
	slices.Sort(d.Module)
}

func (d Dependencies) Clone() Dependencies {
	return Dependencies{Module: slices.Clone(d.Module)}
}

// Subqueue is an ordered list instance which belongs to exactly one queue
type Subqueue struct {
	// Name is the machine name of the subqueue and is unique across all queues
	Name string
	// Queue is the ID of the queue this subqueue belongs to (the bundle)
	Queue string
	// UUID is a unique id assigned when the subqueue is created
	UUID string
	// Label is the human-readable name of the subqueue
	Label string
	// Module is the module which created the subqueue
	Module string
	// UID is the id of the user who owns the subqueue
	UID string
	// CreatedAt is the time the subqueue was created
	CreatedAt clock.Time
	// UpdatedAt is the time the subqueue was last saved
	UpdatedAt clock.Time
}

// Actor is the user on whose behalf an operation is performed
type Actor struct {
	UID string
}

var (
	AnonymousActor = Actor{UID: "anonymous"}
	SystemActor    = Actor{UID: "system"}
)

type ListOptions struct {
	// Pivot is the name or id to start listing from, it is included in the results
	Pivot string
	// Limit is the maximum number of results to return
	Limit int
}

// QueueFilter narrows a list of queues by configuration
type QueueFilter struct {
	TargetType string
}

func (f QueueFilter) Match(info QueueInfo) bool {
	if f.TargetType != "" && f.TargetType != info.TargetType {
		return false
	}
	return true
}
