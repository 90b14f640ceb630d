package handler

import (
	"context"
	"log/slog"

	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/tackle/clock"
)

// Event is passed to every lifecycle notification of a Handler
type Event struct {
	// Queue is the queue the notification is about. During OnQueuePreSave the handler
	// may modify the queue before it is written to storage.
	Queue *types.QueueInfo
	// Subqueues is the store where the subqueues (the bundle entities) of the queue are kept
	Subqueues store.Subqueues
	// Actor is the user on whose behalf the operation is performed
	Actor types.Actor
	// Now is the time the operation started
	Now clock.Time
	Log *slog.Logger
}

// FormField describes a single configuration field a handler contributes to a form. The service
// does not render forms, it reports the fields to clients which do.
type FormField struct {
	Name        string
	Type        string
	Label       string
	Description string
	Default     string
	Required    bool
	Options     []string
}

// Handler is the policy plugin which manages the subqueues of a queue. A Handler instance is
// bound to a single queue and receives notifications as the queue moves through its lifecycle.
// Notifications always arrive after the service has done its own processing for that step.
type Handler interface {
	// SupportsMultipleSubqueues reports if the queue may have more than one subqueue
	SupportsMultipleSubqueues() bool
	// SettingsForm returns the fields the handler adds to the queue settings form
	SettingsForm() []FormField
	// SubqueueForm returns the fields the handler adds to the form of the subqueue
	SubqueueForm(sub types.Subqueue) []FormField
	// SubqueueLabel returns the label displayed for the subqueue
	SubqueueLabel(sub types.Subqueue) string

	// OnQueueLoad is called when a queue defined in configuration (not created by a user)
	// is loaded. It is called each time the service starts.
	OnQueueLoad(ctx context.Context, e *Event) error
	// OnQueueInsert is called after a newly created queue was saved
	OnQueueInsert(ctx context.Context, e *Event) error
	OnQueuePreSave(ctx context.Context, e *Event) error
	// OnQueuePostSave is called after the queue was saved, update is false if the queue was created
	OnQueuePostSave(ctx context.Context, e *Event, update bool) error
	OnQueuePreDelete(ctx context.Context, e *Event) error
	OnQueuePostDelete(ctx context.Context, e *Event) error
	OnQueuePostLoad(ctx context.Context, e *Event) error
}

// Base implements Handler with no-op defaults. Handlers embed Base and override only what
// they need.
type Base struct {
	// Queue is the queue this handler instance is bound to
	Queue types.QueueInfo
	// Configuration is the handler configuration of the queue
	Configuration map[string]string
}

var _ Handler = &Base{}

func (b *Base) SupportsMultipleSubqueues() bool {
	return false
}

func (b *Base) SettingsForm() []FormField {
	return nil
}

func (b *Base) SubqueueForm(types.Subqueue) []FormField {
	return nil
}

func (b *Base) SubqueueLabel(sub types.Subqueue) string {
	return sub.Label
}

func (b *Base) OnQueueLoad(context.Context, *Event) error {
	return nil
}

func (b *Base) OnQueueInsert(context.Context, *Event) error {
	return nil
}

func (b *Base) OnQueuePreSave(context.Context, *Event) error {
	return nil
}

func (b *Base) OnQueuePostSave(context.Context, *Event, bool) error {
	return nil
}

func (b *Base) OnQueuePreDelete(context.Context, *Event) error {
	return nil
}

func (b *Base) OnQueuePostDelete(context.Context, *Event) error {
	return nil
}

func (b *Base) OnQueuePostLoad(context.Context, *Event) error {
	return nil
}
