package store

import (
	"strings"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
)

var (
	ErrEmptyQueueID      = transport.NewInvalidOption("queue id is invalid; queue id cannot be empty")
	ErrEmptySubqueueName = transport.NewInvalidOption("subqueue name is invalid; subqueue name cannot be empty")
)

const (
	maxIDLength      = 166
	maxLabelLength   = 255
	maxInt16         = 65536 // 1<<16
	maxHandlerConfig = 100
)

// validMachineName reports if the name only contains lower case letters, numbers and underscores
func validMachineName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

type QueuesValidation struct{}

func (s QueuesValidation) validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyQueueID
	}

	if len(id) > maxIDLength {
		return transport.NewInvalidOption("queue id is invalid; cannot be greater than '%d' characters", maxIDLength)
	}

	if !validMachineName(id) {
		return transport.NewInvalidOption("queue id is invalid; '%s' must contain only lowercase letters, "+
			"numbers, and underscores", id)
	}
	return nil
}

func (s QueuesValidation) validateQueueInfo(info types.QueueInfo) error {
	if err := s.validateID(info.ID); err != nil {
		return err
	}

	if strings.TrimSpace(info.Label) == "" {
		return transport.NewInvalidOption("label is invalid; cannot be empty")
	}

	if len(info.Label) > maxLabelLength {
		return transport.NewInvalidOption("label is invalid; cannot be greater than '%d' characters", maxLabelLength)
	}

	if strings.TrimSpace(info.TargetType) == "" {
		return transport.NewInvalidOption("target type is invalid; cannot be empty")
	}

	if strings.TrimSpace(info.Handler) == "" {
		return transport.NewInvalidOption("handler is invalid; cannot be empty")
	}

	if len(info.HandlerConfiguration) > maxHandlerConfig {
		return transport.NewInvalidOption("handler configuration is invalid; cannot have more than %d keys",
			maxHandlerConfig)
	}

	if info.MinSize < 0 {
		return transport.NewInvalidOption("min size is invalid; cannot be negative number")
	}

	if info.MaxSize < 0 {
		return transport.NewInvalidOption("max size is invalid; cannot be negative number")
	}

	if info.MaxSize > maxInt16 || info.MinSize > maxInt16 {
		return transport.NewInvalidOption("size is invalid; cannot be greater than %d", maxInt16)
	}

	// A max size of zero means the queue is unlimited
	if info.MaxSize != 0 && info.MinSize > info.MaxSize {
		return transport.NewInvalidOption("min size is too large; %d cannot be greater than the "+
			"max size %d", info.MinSize, info.MaxSize)
	}
	return nil
}

func (s QueuesValidation) validateAdd(info types.QueueInfo) error {
	return s.validateQueueInfo(info)
}

func (s QueuesValidation) validateUpdate(info types.QueueInfo) error {
	return s.validateQueueInfo(info)
}

func (s QueuesValidation) validateGet(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyQueueID
	}
	return nil
}

func (s QueuesValidation) validateDelete(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyQueueID
	}
	return nil
}

func validateList(opts types.ListOptions) error {
	if opts.Limit < 0 {
		return transport.NewInvalidOption("limit is invalid; limit cannot be negative")
	}

	if opts.Limit > maxInt16 {
		return transport.NewInvalidOption("limit is invalid; cannot be greater than %d", maxInt16)
	}
	return nil
}

type SubqueuesValidation struct{}

func (s SubqueuesValidation) validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptySubqueueName
	}

	if len(name) > maxIDLength {
		return transport.NewInvalidOption("subqueue name is invalid; cannot be greater than '%d' characters",
			maxIDLength)
	}

	if !validMachineName(name) {
		return transport.NewInvalidOption("subqueue name is invalid; '%s' must contain only lowercase "+
			"letters, numbers, and underscores", name)
	}
	return nil
}

func (s SubqueuesValidation) validateAdd(sub types.Subqueue) error {
	if err := s.validateName(sub.Name); err != nil {
		return err
	}

	if strings.TrimSpace(sub.Queue) == "" {
		return transport.NewInvalidOption("subqueue queue is invalid; cannot be empty")
	}

	if len(sub.Label) > maxLabelLength {
		return transport.NewInvalidOption("subqueue label is invalid; cannot be greater than '%d' characters",
			maxLabelLength)
	}
	return nil
}

func (s SubqueuesValidation) validateQueue(queue string) error {
	if strings.TrimSpace(queue) == "" {
		return ErrEmptyQueueID
	}
	return nil
}
