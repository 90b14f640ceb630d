package service

import (
	"maps"
	"slices"

	"github.com/kapetan-io/entityqueue/internal/handler"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
)

// toQueueInfo converts the public queue into the internal representation. Fields owned by the
// service (UUID, Dependencies, timestamps) are ignored. An omitted status is enabled.
func toQueueInfo(in *transport.QueueInfo) types.QueueInfo {
	return types.QueueInfo{
		ID:                   in.ID,
		Label:                in.Label,
		Status:               in.Enabled(),
		TargetType:           in.TargetType,
		MinSize:              in.MinSize,
		MaxSize:              in.MaxSize,
		ActAsQueue:           in.ActAsQueue,
		Handler:              in.Handler,
		HandlerConfiguration: maps.Clone(in.HandlerConfiguration),
	}
}

func fromQueueInfo(in types.QueueInfo) transport.QueueInfo {
	return transport.QueueInfo{
		ID:                   in.ID,
		UUID:                 in.UUID,
		Label:                in.Label,
		Status:               transport.Bool(in.Status),
		TargetType:           in.TargetType,
		MinSize:              in.MinSize,
		MaxSize:              in.MaxSize,
		ActAsQueue:           in.ActAsQueue,
		Handler:              in.Handler,
		HandlerConfiguration: maps.Clone(in.HandlerConfiguration),
		Dependencies:         transport.Dependencies{Module: slices.Clone(in.Dependencies.Module)},
		CreatedAt:            in.CreatedAt,
		UpdatedAt:            in.UpdatedAt,
	}
}

func fromSubqueue(in types.Subqueue, form []handler.FormField) transport.Subqueue {
	return transport.Subqueue{
		Name:      in.Name,
		Queue:     in.Queue,
		UUID:      in.UUID,
		Label:     in.Label,
		Module:    in.Module,
		UID:       in.UID,
		Form:      fromFormFields(form),
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
}

func fromFormFields(in []handler.FormField) []transport.FormField {
	if len(in) == 0 {
		return nil
	}
	out := make([]transport.FormField, 0, len(in))
	for _, f := range in {
		out = append(out, transport.FormField{
			Name:        f.Name,
			Type:        f.Type,
			Label:       f.Label,
			Description: f.Description,
			Default:     f.Default,
			Required:    f.Required,
			Options:     slices.Clone(f.Options),
		})
	}
	return out
}
