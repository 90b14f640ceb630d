package transport

import (
	"context"
)

// QueueAdmin handles the queue configuration lifecycle. The actor is the uid of the user on
// whose behalf the request is made.
type QueueAdmin interface {
	QueuesCreate(ctx context.Context, actor string, req *QueueInfo, res *QueueInfo) error
	QueuesUpdate(ctx context.Context, actor string, req *QueueInfo, res *QueueInfo) error
	QueuesDelete(ctx context.Context, actor string, req *QueuesDeleteRequest) error
	QueuesInfo(ctx context.Context, actor string, req *QueuesInfoRequest, res *QueueInfo) error
	QueuesList(ctx context.Context, actor string, req *QueuesListRequest, res *QueuesListResponse) error
}

// SubqueueAdmin handles the subqueues which belong to a queue
type SubqueueAdmin interface {
	SubqueuesList(context.Context, *SubqueuesListRequest, *SubqueuesListResponse) error
	SubqueuesCreate(ctx context.Context, actor string, req *Subqueue, res *Subqueue) error
	SubqueuesDelete(context.Context, *SubqueuesDeleteRequest) error
}

// RegistryInspector exposes the registered handlers, entity types and modules
type RegistryInspector interface {
	HandlersList(context.Context, *HandlersListResponse) error
	EntityTypesList(context.Context, *EntityTypesListResponse) error
	ModulesUninstall(context.Context, *ModulesUninstallRequest, *ModulesUninstallResponse) error
	CacheChecksum(context.Context, *CacheChecksumRequest, *CacheChecksumResponse) error
}

// Service combines all interfaces the HTTPHandler requires
type Service interface {
	QueueAdmin
	SubqueueAdmin
	RegistryInspector
	Health(context.Context) (*HealthResponse, error)
}
