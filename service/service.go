/*
Copyright 2024 Derrick J. Wippler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/internal"
	"github.com/kapetan-io/entityqueue/internal/cache"
	"github.com/kapetan-io/entityqueue/internal/entitytype"
	"github.com/kapetan-io/entityqueue/internal/handler"
	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
)

const (
	DefaultListLimit = 1_000
)

type Config struct {
	// Log is the logging implementation used by this entityqueue instance
	Log *slog.Logger
	// StorageConfig is the configured storage backends
	StorageConfig store.Config
	// Cache is where cache tags are invalidated. Defaults to an in memory invalidator
	Cache cache.Invalidator
	// Handlers are the queue handlers available. Defaults to 'simple' and 'multiple'
	Handlers *handler.Registry
	// EntityTypes are the entity types queues may target. Defaults to the core entity types
	EntityTypes *entitytype.Registry
	// DefaultQueues are queues provided by configuration which are loaded when the service starts
	DefaultQueues []types.QueueInfo
	// DefaultActor is the actor used when loading DefaultQueues
	DefaultActor types.Actor
	// Version is reported by the health check
	Version string
	// Clock is a time provider used to preform time related calculations. It is configurable so that it can
	// be overridden for testing.
	Clock *clock.Provider
}

type Service struct {
	queues *internal.QueuesManager
	conf   Config
}

func New(ctx context.Context, conf Config) (*Service, error) {
	set.Default(&conf.Log, slog.Default())
	set.Default(&conf.Clock, clock.NewProvider())
	set.Default(&conf.Version, entityqueue.Version)
	set.Default(&conf.DefaultActor, types.SystemActor)

	qm, err := internal.NewQueuesManager(internal.QueuesManagerConfig{
		StorageConfig: conf.StorageConfig,
		EntityTypes:   conf.EntityTypes,
		Handlers:      conf.Handlers,
		Cache:         conf.Cache,
		Clock:         conf.Clock,
		Log:           conf.Log,
	})
	if err != nil {
		return nil, err
	}

	if err := qm.LoadDefaults(ctx, conf.DefaultActor, conf.DefaultQueues); err != nil {
		_ = qm.Shutdown(ctx)
		return nil, err
	}

	return &Service{
		conf:   conf,
		queues: qm,
	}, nil
}

// -------------------------------------------------
// API to manage queues
// -------------------------------------------------

func (s *Service) QueuesCreate(ctx context.Context, actor string, req *transport.QueueInfo,
	res *transport.QueueInfo) error {
	info, err := s.queues.Create(ctx, types.Actor{UID: actor}, toQueueInfo(req))
	if err != nil {
		return err
	}
	*res = fromQueueInfo(info)
	return nil
}

func (s *Service) QueuesUpdate(ctx context.Context, actor string, req *transport.QueueInfo,
	res *transport.QueueInfo) error {
	update := toQueueInfo(req)
	if req.Status == nil {
		current, err := s.queues.Get(ctx, types.Actor{UID: actor}, req.ID)
		if err != nil {
			return err
		}
		update.Status = current.Status
	}

	info, err := s.queues.Update(ctx, types.Actor{UID: actor}, update)
	if err != nil {
		return err
	}
	*res = fromQueueInfo(info)
	return nil
}

func (s *Service) QueuesDelete(ctx context.Context, actor string, req *transport.QueuesDeleteRequest) error {
	return s.queues.Delete(ctx, types.Actor{UID: actor}, req.IDs...)
}

func (s *Service) QueuesInfo(ctx context.Context, actor string, req *transport.QueuesInfoRequest,
	res *transport.QueueInfo) error {
	info, err := s.queues.Get(ctx, types.Actor{UID: actor}, req.ID)
	if err != nil {
		return err
	}
	*res = fromQueueInfo(info)
	return nil
}

func (s *Service) QueuesList(ctx context.Context, actor string, req *transport.QueuesListRequest,
	res *transport.QueuesListResponse) error {
	var queues []types.QueueInfo

	if req.TargetType != "" {
		if err := s.queues.ListByTargetType(ctx, types.Actor{UID: actor}, req.TargetType, &queues); err != nil {
			return err
		}
	} else {
		if req.Limit == 0 {
			req.Limit = DefaultListLimit
		}
		if err := s.queues.List(ctx, types.Actor{UID: actor}, &queues, types.ListOptions{
			Pivot: req.Pivot,
			Limit: req.Limit,
		}); err != nil {
			return err
		}
	}

	for _, info := range queues {
		res.Items = append(res.Items, fromQueueInfo(info))
	}
	return nil
}

// -------------------------------------------------
// API to manage subqueues
// -------------------------------------------------

func (s *Service) SubqueuesList(ctx context.Context, req *transport.SubqueuesListRequest,
	res *transport.SubqueuesListResponse) error {
	if req.Limit == 0 {
		req.Limit = DefaultListLimit
	}

	var subs []internal.SubqueueInfo
	if err := s.queues.SubqueuesList(ctx, req.Queue, &subs, types.ListOptions{
		Pivot: req.Pivot,
		Limit: req.Limit,
	}); err != nil {
		return err
	}

	for _, sub := range subs {
		res.Items = append(res.Items, fromSubqueue(sub.Subqueue, sub.Form))
	}
	return nil
}

func (s *Service) SubqueuesCreate(ctx context.Context, actor string, req *transport.Subqueue,
	res *transport.Subqueue) error {
	sub, err := s.queues.SubqueuesCreate(ctx, types.Actor{UID: actor}, types.Subqueue{
		Name:   req.Name,
		Queue:  req.Queue,
		Label:  req.Label,
		Module: req.Module,
	})
	if err != nil {
		return err
	}
	*res = fromSubqueue(sub, nil)
	return nil
}

func (s *Service) SubqueuesDelete(ctx context.Context, req *transport.SubqueuesDeleteRequest) error {
	return s.queues.SubqueuesDelete(ctx, req.Queue, req.Name)
}

// -------------------------------------------------
// API to inspect handlers, entity types and modules
// -------------------------------------------------

func (s *Service) HandlersList(_ context.Context, res *transport.HandlersListResponse) error {
	for _, d := range s.queues.Handlers().Definitions() {
		h := d.Factory(types.QueueInfo{Handler: d.ID})
		res.Items = append(res.Items, transport.Handler{
			ID:                        d.ID,
			Title:                     d.Title,
			SupportsMultipleSubqueues: h.SupportsMultipleSubqueues(),
			SettingsForm:              fromFormFields(h.SettingsForm()),
		})
	}
	return nil
}

func (s *Service) EntityTypesList(_ context.Context, res *transport.EntityTypesListResponse) error {
	for _, d := range s.queues.EntityTypes().Definitions() {
		res.Items = append(res.Items, transport.EntityType{
			ID:       d.ID,
			Label:    d.Label,
			Provider: d.Provider,
		})
	}
	return nil
}

func (s *Service) ModulesUninstall(ctx context.Context, req *transport.ModulesUninstallRequest,
	res *transport.ModulesUninstallResponse) error {
	removed, err := s.queues.ModulesUninstall(ctx, req.Module)
	if err != nil {
		return err
	}
	res.EntityTypes = removed
	return nil
}

func (s *Service) CacheChecksum(ctx context.Context, req *transport.CacheChecksumRequest,
	res *transport.CacheChecksumResponse) error {
	if len(req.Tags) == 0 {
		return transport.NewInvalidOption("tags is invalid; must provide at least one cache tag")
	}

	sum, err := s.queues.Checksum(ctx, req.Tags...)
	if err != nil {
		return err
	}
	res.Checksum = sum
	return nil
}

func (s *Service) Health(ctx context.Context) (*transport.HealthResponse, error) {
	const healthTimeout = 5 * time.Second

	healthCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	response := &transport.HealthResponse{
		Status:  transport.HealthStatusPass,
		Version: s.conf.Version,
	}

	var queues []types.QueueInfo
	err := s.queues.List(healthCtx, types.SystemActor, &queues, types.ListOptions{Limit: 1})
	response.AddCheck("queues:storage", transport.ComponentDatastore, s.conf.Clock.Now(), err)

	_, err = s.queues.Checksum(healthCtx, cache.TagQueueList)
	response.AddCheck("cache:tags", transport.ComponentCache, s.conf.Clock.Now(), err)

	return response, nil
}

// Shutdown closes storage. Requests made after Shutdown return ErrServiceShutdown.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.queues.Shutdown(ctx); err != nil {
		return err
	}
	if s.conf.Cache != nil {
		return s.conf.Cache.Close(ctx)
	}
	return nil
}
