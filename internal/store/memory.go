package store

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/tackle/set"
)

// ---------------------------------------------
// Queues Implementation
// ---------------------------------------------

type MemoryQueues struct {
	QueuesValidation
	mem []types.QueueInfo
	log *slog.Logger
	mu  sync.RWMutex
}

var _ Queues = &MemoryQueues{}

func NewMemoryQueues(log *slog.Logger) *MemoryQueues {
	set.Default(&log, slog.Default())
	return &MemoryQueues{
		mem: make([]types.QueueInfo, 0, 1_000),
		log: log,
	}
}

func (s *MemoryQueues) Get(_ context.Context, id string, info *types.QueueInfo) error {
	if err := s.validateGet(id); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	s.mu.RLock()

	idx, ok := s.findQueue(id)
	if !ok {
		return ErrQueueNotExist
	}
	*info = s.mem[idx].Clone()
	return nil
}

func (s *MemoryQueues) Add(_ context.Context, info types.QueueInfo) error {
	if err := s.validateAdd(info); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	idx, ok := s.findQueue(info.ID)
	if ok {
		return ErrQueueAlreadyExists
	}
	s.mem = slices.Insert(s.mem, idx, info.Clone())
	return nil
}

func (s *MemoryQueues) Update(_ context.Context, info types.QueueInfo) error {
	if err := s.validateUpdate(info); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	idx, ok := s.findQueue(info.ID)
	if !ok {
		return ErrQueueNotExist
	}
	s.mem[idx].Update(info)
	return nil
}

func (s *MemoryQueues) List(_ context.Context, queues *[]types.QueueInfo, opts types.ListOptions) error {
	if err := validateList(opts); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	s.mu.RLock()

	var idx, count int
	if opts.Pivot != "" {
		idx, _ = s.findQueue(opts.Pivot)
	}

	for _, info := range s.mem[idx:] {
		if opts.Limit != 0 && count >= opts.Limit {
			return nil
		}
		*queues = append(*queues, info.Clone())
		count++
	}
	return nil
}

func (s *MemoryQueues) Delete(_ context.Context, id string) error {
	if err := s.validateDelete(id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	idx, ok := s.findQueue(id)
	if !ok {
		return nil
	}
	s.mem = slices.Delete(s.mem, idx, idx+1)
	return nil
}

func (s *MemoryQueues) Close(_ context.Context) error {
	defer s.mu.Unlock()
	s.mu.Lock()
	s.mem = nil
	return nil
}

// findQueue returns the index of the queue and true if found. If not found, it returns
// the index where the queue would be inserted.
func (s *MemoryQueues) findQueue(id string) (int, bool) {
	return slices.BinarySearchFunc(s.mem, id, func(info types.QueueInfo, id string) int {
		return strings.Compare(info.ID, id)
	})
}

// ---------------------------------------------
// Subqueues Implementation
// ---------------------------------------------

type MemorySubqueues struct {
	SubqueuesValidation
	mem []types.Subqueue
	log *slog.Logger
	mu  sync.RWMutex
}

var _ Subqueues = &MemorySubqueues{}

func NewMemorySubqueues(log *slog.Logger) *MemorySubqueues {
	set.Default(&log, slog.Default())
	return &MemorySubqueues{
		mem: make([]types.Subqueue, 0, 1_000),
		log: log,
	}
}

func (s *MemorySubqueues) Get(_ context.Context, name string, sub *types.Subqueue) error {
	if err := s.validateName(name); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	s.mu.RLock()

	idx, ok := s.find(name)
	if !ok {
		return ErrSubqueueNotExist
	}
	*sub = s.mem[idx]
	return nil
}

func (s *MemorySubqueues) Add(_ context.Context, sub types.Subqueue) error {
	if err := s.validateAdd(sub); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	idx, ok := s.find(sub.Name)
	if ok {
		return ErrSubqueueAlreadyExists
	}
	s.mem = slices.Insert(s.mem, idx, sub)
	return nil
}

func (s *MemorySubqueues) ListByQueue(_ context.Context, queue string, subs *[]types.Subqueue,
	opts types.ListOptions) error {
	if err := s.validateQueue(queue); err != nil {
		return err
	}
	if err := validateList(opts); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	s.mu.RLock()

	var idx, count int
	if opts.Pivot != "" {
		idx, _ = s.find(opts.Pivot)
	}

	for _, sub := range s.mem[idx:] {
		if opts.Limit != 0 && count >= opts.Limit {
			return nil
		}
		if sub.Queue != queue {
			continue
		}
		*subs = append(*subs, sub)
		count++
	}
	return nil
}

func (s *MemorySubqueues) Delete(_ context.Context, name string) error {
	if err := s.validateName(name); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	idx, ok := s.find(name)
	if !ok {
		return nil
	}
	s.mem = slices.Delete(s.mem, idx, idx+1)
	return nil
}

func (s *MemorySubqueues) DeleteByQueue(_ context.Context, queue string) error {
	if err := s.validateQueue(queue); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.mu.Lock()

	s.mem = slices.DeleteFunc(s.mem, func(sub types.Subqueue) bool {
		return sub.Queue == queue
	})
	return nil
}

func (s *MemorySubqueues) Close(_ context.Context) error {
	defer s.mu.Unlock()
	s.mu.Lock()
	s.mem = nil
	return nil
}

func (s *MemorySubqueues) find(name string) (int, bool) {
	return slices.BinarySearchFunc(s.mem, name, func(sub types.Subqueue, name string) int {
		return strings.Compare(sub.Name, name)
	})
}
