package internal

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kapetan-io/entityqueue/internal/cache"
	"github.com/kapetan-io/entityqueue/internal/entitytype"
	"github.com/kapetan-io/entityqueue/internal/handler"
	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
	"github.com/segmentio/ksuid"
)

const (
	LevelDebugAll = store.LevelDebugAll
	LevelDebug    = store.LevelDebug
)

var ErrServiceShutdown = transport.NewRequestFailed("service is shutting down")

type QueuesManagerConfig struct {
	// StorageConfig is the store where queues and subqueues are kept
	StorageConfig store.Config
	// Handlers are the handlers which can be assigned to a queue
	Handlers *handler.Registry
	// EntityTypes are the entity types a queue can target
	EntityTypes *entitytype.Registry
	// Cache is where cache tags are invalidated when a queue is saved or deleted
	Cache cache.Invalidator
	Clock *clock.Provider
	Log   *slog.Logger
}

// SubqueueInfo is a subqueue as displayed to clients, with the label resolved by the queue's
// handler and the form fields the handler contributes to the subqueue.
type SubqueueInfo struct {
	types.Subqueue
	Form []handler.FormField
}

// QueuesManager manages the lifecycle of queues. Every change to a queue passes through the
// QueuesManager such that the queue's handler is notified and cache tags are invalidated.
type QueuesManager struct {
	conf       QueuesManagerConfig
	log        *slog.Logger
	inShutdown atomic.Bool
	mutex      sync.Mutex
}

func NewQueuesManager(conf QueuesManagerConfig) (*QueuesManager, error) {
	set.Default(&conf.Log, slog.Default())
	set.Default(&conf.Clock, clock.NewProvider())
	set.Default(&conf.Handlers, handler.DefaultRegistry())
	set.Default(&conf.EntityTypes, entitytype.NewDefaultRegistry())

	if conf.StorageConfig.Queues == nil {
		return nil, transport.NewInvalidOption("conf.StorageConfig.Queues cannot be nil")
	}
	if conf.StorageConfig.Subqueues == nil {
		return nil, transport.NewInvalidOption("conf.StorageConfig.Subqueues cannot be nil")
	}
	if conf.Cache == nil {
		conf.Cache = cache.NewMemory()
	}

	return &QueuesManager{
		log:  conf.Log.With("code.namespace", "QueuesManager"),
		conf: conf,
	}, nil
}

// Create saves a new queue and notifies the queue's handler that it was inserted
func (qm *QueuesManager) Create(ctx context.Context, actor types.Actor, info types.QueueInfo) (types.QueueInfo, error) {
	if qm.inShutdown.Load() {
		return types.QueueInfo{}, ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	if err := qm.save(ctx, actor, &info, false, true); err != nil {
		return types.QueueInfo{}, err
	}
	return info, nil
}

// Update saves changes to the configuration of an existing queue
func (qm *QueuesManager) Update(ctx context.Context, actor types.Actor, info types.QueueInfo) (types.QueueInfo, error) {
	if qm.inShutdown.Load() {
		return types.QueueInfo{}, ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	var found types.QueueInfo
	if err := qm.get(ctx, info.ID, &found); err != nil {
		return types.QueueInfo{}, err
	}
	found.Update(info)

	if err := qm.save(ctx, actor, &found, true, false); err != nil {
		return types.QueueInfo{}, err
	}
	return found, nil
}

// save runs the save pipeline. The service preforms its own pre-save processing before the handler
// is notified, and its own post-save processing before the handler is notified of the post-save.
func (qm *QueuesManager) save(ctx context.Context, actor types.Actor, info *types.QueueInfo, update, insert bool) error {
	now := qm.conf.Clock.Now().UTC()

	// Pre-save
	if !update {
		info.CreatedAt = now
		if info.UUID == "" {
			info.UUID = ksuid.New().String()
		}
	}
	info.UpdatedAt = now
	if err := qm.calculateDependencies(info); err != nil {
		return err
	}

	h, err := qm.handler(*info)
	if err != nil {
		return err
	}

	e := qm.newEvent(info, actor, now)
	if err := h.OnQueuePreSave(ctx, e); err != nil {
		return err
	}

	// The handler may have modified the queue
	if update {
		err = qm.conf.StorageConfig.Queues.Update(ctx, *info)
	} else {
		err = qm.conf.StorageConfig.Queues.Add(ctx, *info)
	}
	if err != nil {
		if errors.Is(err, store.ErrQueueAlreadyExists) {
			return transport.NewInvalidOption("invalid queue; '%s' already exists", info.ID)
		}
		if errors.Is(err, store.ErrQueueNotExist) {
			return transport.NewInvalidOption("queue does not exist; no such queue named '%s'", info.ID)
		}
		return err
	}

	// Post-save
	qm.log.LogAttrs(ctx, LevelDebug, "queue saved",
		slog.String("queue", info.ID),
		slog.String("handler", info.Handler),
		slog.Bool("update", update))

	err = qm.postSave(ctx, h, e, update, insert)
	if err != nil && !update {
		qm.rollback(ctx, info.ID, err)
	}

	// Storage was written, so cached lists are stale even if the handler failed
	if tagErr := qm.invalidateTags(ctx); tagErr != nil && err == nil {
		return tagErr
	}
	return err
}

func (qm *QueuesManager) postSave(ctx context.Context, h handler.Handler, e *handler.Event, update, insert bool) error {
	if err := h.OnQueuePostSave(ctx, e, update); err != nil {
		return err
	}
	if insert {
		return h.OnQueueInsert(ctx, e)
	}
	return nil
}

// rollback removes a newly added queue, and any subqueues its handler created, after the handler
// failed to complete the save.
func (qm *QueuesManager) rollback(ctx context.Context, id string, cause error) {
	qm.log.LogAttrs(ctx, slog.LevelWarn, "handler failed to save queue; removing queue",
		slog.String("queue", id), slog.String("error", cause.Error()))

	if err := qm.conf.StorageConfig.Subqueues.DeleteByQueue(ctx, id); err != nil {
		qm.log.LogAttrs(ctx, slog.LevelError, "while removing subqueues of failed queue",
			slog.String("queue", id), slog.String("error", err.Error()))
	}
	if err := qm.conf.StorageConfig.Queues.Delete(ctx, id); err != nil {
		qm.log.LogAttrs(ctx, slog.LevelError, "while removing failed queue",
			slog.String("queue", id), slog.String("error", err.Error()))
	}
}

// calculateDependencies ensures the queue depends on the module which provides the target entity type
func (qm *QueuesManager) calculateDependencies(info *types.QueueInfo) error {
	if strings.TrimSpace(info.TargetType) == "" {
		return transport.NewInvalidOption("target type is invalid; cannot be empty")
	}

	def, err := qm.conf.EntityTypes.Definition(info.TargetType)
	if err != nil {
		if errors.Is(err, entitytype.ErrEntityTypeNotExist) {
			return transport.NewRequestFailed("target type is invalid; entity type '%s' does not exist",
				info.TargetType)
		}
		return err
	}

	info.Dependencies = types.Dependencies{}
	info.Dependencies.AddModule(def.Provider)
	return nil
}

// invalidateTags invalidates the list cache tag of queues merged with the tags every queue invalidates
func (qm *QueuesManager) invalidateTags(ctx context.Context) error {
	tags := cache.MergeTags([]string{cache.TagQueueList}, queueCacheTags())

	if err := qm.conf.Cache.InvalidateTags(ctx, tags); err != nil {
		return errors.Errorf("while invalidating cache tags: %w", err)
	}
	qm.log.LogAttrs(ctx, LevelDebugAll, "invalidated cache tags", slog.Any("tags", tags))
	return nil
}

// queueCacheTags are the tags invalidated when a queue is saved or deleted. A queue that is
// created or deleted may alter views data relationships.
func queueCacheTags() []string {
	return []string{cache.TagViewsData}
}

// Get returns the queue after notifying the queue's handler the queue was loaded
func (qm *QueuesManager) Get(ctx context.Context, actor types.Actor, id string) (types.QueueInfo, error) {
	if qm.inShutdown.Load() {
		return types.QueueInfo{}, ErrServiceShutdown
	}

	var info types.QueueInfo
	if err := qm.get(ctx, id, &info); err != nil {
		return types.QueueInfo{}, err
	}

	loaded := []types.QueueInfo{info}
	if err := qm.postLoad(ctx, actor, loaded); err != nil {
		return types.QueueInfo{}, err
	}
	return loaded[0], nil
}

func (qm *QueuesManager) get(ctx context.Context, id string, info *types.QueueInfo) error {
	if err := qm.conf.StorageConfig.Queues.Get(ctx, id, info); err != nil {
		if errors.Is(err, store.ErrQueueNotExist) {
			return transport.NewInvalidOption("queue does not exist; no such queue named '%s'", id)
		}
		return err
	}
	return nil
}

// List returns a page of queues ordered by id
func (qm *QueuesManager) List(ctx context.Context, actor types.Actor, queues *[]types.QueueInfo,
	opts types.ListOptions) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}

	var list []types.QueueInfo
	if err := qm.conf.StorageConfig.Queues.List(ctx, &list, opts); err != nil {
		return err
	}

	if err := qm.postLoad(ctx, actor, list); err != nil {
		return err
	}
	*queues = append(*queues, list...)
	return nil
}

// ListByTargetType returns every queue which references items of the entity type
func (qm *QueuesManager) ListByTargetType(ctx context.Context, actor types.Actor, targetType string,
	queues *[]types.QueueInfo) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}

	filter := types.QueueFilter{TargetType: targetType}
	var list []types.QueueInfo
	if err := qm.conf.StorageConfig.Queues.List(ctx, &list, types.ListOptions{}); err != nil {
		return err
	}

	list = slices.DeleteFunc(list, func(info types.QueueInfo) bool {
		return !filter.Match(info)
	})

	if err := qm.postLoad(ctx, actor, list); err != nil {
		return err
	}
	*queues = append(*queues, list...)
	return nil
}

func (qm *QueuesManager) postLoad(ctx context.Context, actor types.Actor, queues []types.QueueInfo) error {
	now := qm.conf.Clock.Now().UTC()
	for i := range queues {
		h, err := qm.handler(queues[i])
		if err != nil {
			return err
		}
		if err := h.OnQueuePostLoad(ctx, qm.newEvent(&queues[i], actor, now)); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the queues and the subqueues which belong to them
func (qm *QueuesManager) Delete(ctx context.Context, actor types.Actor, ids ...string) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	if len(ids) == 0 {
		return transport.NewInvalidOption("queue id is invalid; queue id cannot be empty")
	}

	now := qm.conf.Clock.Now().UTC()
	queues := make([]types.QueueInfo, len(ids))
	handlers := make([]handler.Handler, len(ids))
	events := make([]*handler.Event, len(ids))

	for i, id := range ids {
		if err := qm.get(ctx, id, &queues[i]); err != nil {
			return err
		}
		h, err := qm.handler(queues[i])
		if err != nil {
			return err
		}
		handlers[i] = h
		events[i] = qm.newEvent(&queues[i], actor, now)
	}

	// Pre-delete
	for i, h := range handlers {
		if err := h.OnQueuePreDelete(ctx, events[i]); err != nil {
			return err
		}
	}

	for _, info := range queues {
		if err := qm.conf.StorageConfig.Queues.Delete(ctx, info.ID); err != nil {
			return err
		}
	}

	// Post-delete, the subqueues are entities of the bundle being deleted
	for _, info := range queues {
		if err := qm.conf.StorageConfig.Subqueues.DeleteByQueue(ctx, info.ID); err != nil {
			return err
		}
		qm.log.LogAttrs(ctx, LevelDebug, "queue deleted", slog.String("queue", info.ID))
	}

	for i, h := range handlers {
		if err := h.OnQueuePostDelete(ctx, events[i]); err != nil {
			return err
		}
	}

	return qm.invalidateTags(ctx)
}

// LoadDefaults loads the queues defined in configuration. Queues which do not exist in storage are
// saved, then the handler of every default queue is notified the queue was loaded.
func (qm *QueuesManager) LoadDefaults(ctx context.Context, actor types.Actor, queues []types.QueueInfo) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	for _, info := range queues {
		var found types.QueueInfo
		err := qm.conf.StorageConfig.Queues.Get(ctx, info.ID, &found)
		switch {
		case err == nil:
			info = found
		case errors.Is(err, store.ErrQueueNotExist):
			if err := qm.save(ctx, actor, &info, false, false); err != nil {
				return errors.Errorf("while saving default queue '%s': %w", info.ID, err)
			}
			qm.log.LogAttrs(ctx, slog.LevelInfo, "created default queue", slog.String("queue", info.ID))
		default:
			return err
		}

		h, err := qm.handler(info)
		if err != nil {
			return err
		}
		if err := h.OnQueueLoad(ctx, qm.newEvent(&info, actor, qm.conf.Clock.Now().UTC())); err != nil {
			return err
		}
	}
	return nil
}

// SubqueuesList lists the subqueues of the queue, with labels and forms provided by the queue's handler
func (qm *QueuesManager) SubqueuesList(ctx context.Context, queue string, subs *[]SubqueueInfo,
	opts types.ListOptions) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}

	var info types.QueueInfo
	if err := qm.get(ctx, queue, &info); err != nil {
		return err
	}

	h, err := qm.handler(info)
	if err != nil {
		return err
	}

	var list []types.Subqueue
	if err := qm.conf.StorageConfig.Subqueues.ListByQueue(ctx, queue, &list, opts); err != nil {
		return err
	}

	for _, sub := range list {
		sub.Label = h.SubqueueLabel(sub)
		*subs = append(*subs, SubqueueInfo{Subqueue: sub, Form: h.SubqueueForm(sub)})
	}
	return nil
}

// SubqueuesCreate adds a subqueue to the queue. Queues whose handler does not support multiple
// subqueues may only ever have one.
func (qm *QueuesManager) SubqueuesCreate(ctx context.Context, actor types.Actor, sub types.Subqueue) (types.Subqueue, error) {
	if qm.inShutdown.Load() {
		return types.Subqueue{}, ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	var info types.QueueInfo
	if err := qm.get(ctx, sub.Queue, &info); err != nil {
		return types.Subqueue{}, err
	}

	h, err := qm.handler(info)
	if err != nil {
		return types.Subqueue{}, err
	}

	if !h.SupportsMultipleSubqueues() {
		var existing []types.Subqueue
		err := qm.conf.StorageConfig.Subqueues.ListByQueue(ctx, info.ID, &existing, types.ListOptions{Limit: 1})
		if err != nil {
			return types.Subqueue{}, err
		}
		if len(existing) != 0 {
			return types.Subqueue{}, transport.NewConflict("queue '%s' has handler '%s' which does not "+
				"support multiple subqueues", info.ID, info.Handler)
		}
	}

	now := qm.conf.Clock.Now().UTC()
	set.Default(&sub.UUID, ksuid.New().String())
	set.Default(&sub.Module, types.ModuleName)
	set.Default(&sub.UID, actor.UID)
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Label == "" {
		sub.Label = h.SubqueueLabel(sub)
	}

	if err := qm.conf.StorageConfig.Subqueues.Add(ctx, sub); err != nil {
		if errors.Is(err, store.ErrSubqueueAlreadyExists) {
			return types.Subqueue{}, transport.NewConflict("subqueue '%s' already exists", sub.Name)
		}
		return types.Subqueue{}, err
	}
	return sub, nil
}

// SubqueuesDelete removes the subqueue from the queue. The subqueue of a queue whose handler does not
// support multiple subqueues is only removed along with the queue.
func (qm *QueuesManager) SubqueuesDelete(ctx context.Context, queue, name string) error {
	if qm.inShutdown.Load() {
		return ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	var sub types.Subqueue
	if err := qm.conf.StorageConfig.Subqueues.Get(ctx, name, &sub); err != nil {
		if errors.Is(err, store.ErrSubqueueNotExist) {
			return transport.NewInvalidOption("subqueue does not exist; no such subqueue named '%s'", name)
		}
		return err
	}

	if sub.Queue != queue {
		return transport.NewInvalidOption("subqueue does not exist; no subqueue named '%s' in queue '%s'",
			name, queue)
	}

	var info types.QueueInfo
	if err := qm.get(ctx, queue, &info); err != nil {
		return err
	}

	h, err := qm.handler(info)
	if err != nil {
		return err
	}

	if !h.SupportsMultipleSubqueues() {
		return transport.NewConflict("subqueue '%s' cannot be deleted; queue '%s' has handler '%s' which "+
			"does not support multiple subqueues", name, info.ID, info.Handler)
	}
	return qm.conf.StorageConfig.Subqueues.Delete(ctx, name)
}

// ModulesUninstall removes the entity types provided by the module. The module cannot be removed
// while any queue depends upon it.
func (qm *QueuesManager) ModulesUninstall(ctx context.Context, module string) ([]string, error) {
	if qm.inShutdown.Load() {
		return nil, ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	if strings.TrimSpace(module) == "" {
		return nil, transport.NewInvalidOption("module is invalid; cannot be empty")
	}

	var queues []types.QueueInfo
	if err := qm.conf.StorageConfig.Queues.List(ctx, &queues, types.ListOptions{}); err != nil {
		return nil, err
	}

	var dependents []string
	for _, info := range queues {
		if slices.Contains(info.Dependencies.Module, module) {
			dependents = append(dependents, info.ID)
		}
	}

	if len(dependents) != 0 {
		return nil, transport.NewConflict("module '%s' is required by queues '%s'",
			module, strings.Join(dependents, "', '"))
	}

	removed := qm.conf.EntityTypes.Unregister(module)
	qm.log.LogAttrs(ctx, slog.LevelInfo, "module uninstalled",
		slog.String("module", module), slog.Any("entity_types", removed))
	return removed, nil
}

// Checksum returns the invalidation checksum of the cache tags
func (qm *QueuesManager) Checksum(ctx context.Context, tags ...string) (int64, error) {
	if qm.inShutdown.Load() {
		return 0, ErrServiceShutdown
	}
	return qm.conf.Cache.Checksum(ctx, tags...)
}

// Handlers returns the handler registry
func (qm *QueuesManager) Handlers() *handler.Registry {
	return qm.conf.Handlers
}

// EntityTypes returns the entity type registry
func (qm *QueuesManager) EntityTypes() *entitytype.Registry {
	return qm.conf.EntityTypes
}

func (qm *QueuesManager) handler(info types.QueueInfo) (handler.Handler, error) {
	h, err := qm.conf.Handlers.New(info)
	if err != nil {
		if errors.Is(err, handler.ErrHandlerNotExist) {
			return nil, transport.NewRequestFailed("handler is invalid; handler '%s' does not exist "+
				"for queue '%s'", info.Handler, info.ID)
		}
		return nil, err
	}
	return h, nil
}

func (qm *QueuesManager) newEvent(info *types.QueueInfo, actor types.Actor, now clock.Time) *handler.Event {
	return &handler.Event{
		Subqueues: qm.conf.StorageConfig.Subqueues,
		Log:       qm.log,
		Queue:     info,
		Actor:     actor,
		Now:       now,
	}
}

func (qm *QueuesManager) Shutdown(ctx context.Context) error {
	if qm.inShutdown.Load() {
		return nil
	}

	qm.inShutdown.Store(true)
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	wait := make(chan error, 1)
	go func() {
		if err := qm.conf.StorageConfig.Close(ctx); err != nil {
			wait <- err
			return
		}
		close(wait)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-wait:
		return err
	}
}
