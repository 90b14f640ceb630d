package handler

import (
	"context"
	"log/slog"

	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/errors"
	"github.com/segmentio/ksuid"
)

const SimpleID = "simple"

// Simple manages a queue with exactly one subqueue which shares the name and label of the queue
type Simple struct {
	Base
}

var _ Handler = &Simple{}

func NewSimple(queue types.QueueInfo) Handler {
	return &Simple{Base: Base{Queue: queue, Configuration: queue.HandlerConfiguration}}
}

// SubqueueLabel always returns the label of the queue
func (h *Simple) SubqueueLabel(types.Subqueue) string {
	return h.Queue.Label
}

func (h *Simple) OnQueueLoad(ctx context.Context, e *Event) error {
	return h.ensureSubqueue(ctx, e)
}

func (h *Simple) OnQueueInsert(ctx context.Context, e *Event) error {
	return h.ensureSubqueue(ctx, e)
}

// ensureSubqueue creates the single subqueue of the queue if it does not already exist. Subqueue
// names are unique across all queues, so a name which is taken is only acceptable when the
// subqueue holding it belongs to this queue, IE: another request created it between our list and add.
func (h *Simple) ensureSubqueue(ctx context.Context, e *Event) error {
	var subs []types.Subqueue
	if err := e.Subqueues.ListByQueue(ctx, e.Queue.ID, &subs, types.ListOptions{Limit: 1}); err != nil {
		return err
	}

	if len(subs) != 0 {
		return nil
	}

	sub := types.Subqueue{
		Name:      e.Queue.ID,
		Queue:     e.Queue.ID,
		UUID:      ksuid.New().String(),
		Module:    types.ModuleName,
		UID:       e.Actor.UID,
		CreatedAt: e.Now,
		UpdatedAt: e.Now,
	}
	sub.Label = h.SubqueueLabel(sub)

	if err := e.Subqueues.Add(ctx, sub); err != nil {
		if !errors.Is(err, store.ErrSubqueueAlreadyExists) {
			return err
		}

		var found types.Subqueue
		if err := e.Subqueues.Get(ctx, sub.Name, &found); err != nil {
			return err
		}
		if found.Queue != e.Queue.ID {
			return transport.NewConflict("subqueue '%s' already exists in queue '%s'", sub.Name, found.Queue)
		}
		return nil
	}

	if e.Log != nil {
		e.Log.LogAttrs(ctx, store.LevelDebug, "created subqueue",
			slog.String("queue", e.Queue.ID), slog.String("subqueue", sub.Name))
	}
	return nil
}
