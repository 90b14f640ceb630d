package store

import (
	"context"
	"log/slog"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/clock"
)

const (
	LevelDebugAll = slog.LevelDebug
	LevelDebug    = slog.LevelDebug + 1
)

var (
	ErrQueueNotExist         = transport.NewInvalidOption("queue does not exist")
	ErrQueueAlreadyExists    = transport.NewInvalidOption("queue already exists")
	ErrSubqueueNotExist      = transport.NewInvalidOption("subqueue does not exist")
	ErrSubqueueAlreadyExists = transport.NewConflict("subqueue already exists")
)

// Queues is storage for the configuration of queues. Implementations should employ lazy
// storage initialization such that they make contact or create underlying tables only upon
// first invocation.
type Queues interface {
	// Get fetches QueueInfo from storage. Returns ErrQueueNotExist if the
	// queue requested does not exist
	Get(ctx context.Context, id string, info *types.QueueInfo) error

	// Add a QueueInfo to the store. Returns ErrQueueAlreadyExists if a queue with the same id exists
	Add(ctx context.Context, info types.QueueInfo) error

	// Update the QueueInfo of an existing queue. Returns ErrQueueNotExist if the queue does not exist
	Update(ctx context.Context, info types.QueueInfo) error

	// List returns a list of queues ordered by id
	List(ctx context.Context, queues *[]types.QueueInfo, opts types.ListOptions) error

	// Delete deletes a queue. Returns without error if the queue does not exist
	Delete(ctx context.Context, id string) error

	// Close the all open database connections or files
	Close(ctx context.Context) error
}

// Subqueues is storage for subqueues. The subqueue name is the unique key, Add must refuse to
// overwrite an existing subqueue such that Add can be used as a compare-and-create primitive.
type Subqueues interface {
	// Get fetches a subqueue by name. Returns ErrSubqueueNotExist if it does not exist
	Get(ctx context.Context, name string, sub *types.Subqueue) error

	// Add a subqueue to the store. Returns ErrSubqueueAlreadyExists if the name is taken
	Add(ctx context.Context, sub types.Subqueue) error

	// ListByQueue lists the subqueues which belong to the queue (bundle) ordered by name
	ListByQueue(ctx context.Context, queue string, subs *[]types.Subqueue, opts types.ListOptions) error

	// Delete removes a subqueue. Returns without error if the subqueue does not exist
	Delete(ctx context.Context, name string) error

	// DeleteByQueue removes all subqueues which belong to the queue
	DeleteByQueue(ctx context.Context, queue string) error

	// Close the all open database connections or files
	Close(ctx context.Context) error
}

// Config is the configuration accepted by QueuesManager to manage storage of queues and subqueues
type Config struct {
	// Queues where the configuration of queues is stored
	Queues Queues
	// Subqueues where the subqueues of every queue are stored
	Subqueues Subqueues
	// Clock is the clock provider the backend implementation should use
	Clock *clock.Provider
	// Log is the logger to be used
	Log *slog.Logger
}

// Close closes both stores, returning the first error encountered
func (c Config) Close(ctx context.Context) error {
	var first error
	if c.Subqueues != nil {
		first = c.Subqueues.Close(ctx)
	}
	if c.Queues != nil {
		if err := c.Queues.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
