package handler

import "github.com/kapetan-io/entityqueue/internal/types"

const MultipleID = "multiple"

// Multiple manages a queue which may have any number of subqueues
type Multiple struct {
	Base
}

func NewMultiple(queue types.QueueInfo) Handler {
	return &Multiple{Base: Base{Queue: queue, Configuration: queue.HandlerConfiguration}}
}

func (h *Multiple) SupportsMultipleSubqueues() bool {
	return true
}
