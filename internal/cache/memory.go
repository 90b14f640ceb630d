package cache

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Memory keeps invalidation counts in process. Used when entityqueue runs as a single instance.
type Memory struct {
	invalidations *prometheus.CounterVec
	counts        map[string]int64
	mu            sync.Mutex
}

var _ Invalidator = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		invalidations: newInvalidationCounter(),
		counts:        make(map[string]int64),
	}
}

func (m *Memory) InvalidateTags(_ context.Context, tags []string) error {
	defer m.mu.Unlock()
	m.mu.Lock()

	for _, tag := range tags {
		m.counts[tag]++
		m.invalidations.WithLabelValues(tag).Inc()
	}
	return nil
}

func (m *Memory) Checksum(_ context.Context, tags ...string) (int64, error) {
	defer m.mu.Unlock()
	m.mu.Lock()

	var sum int64
	for _, tag := range MergeTags(tags) {
		sum += m.counts[tag]
	}
	return sum, nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}

// Describe fetches prometheus metrics to be registered
func (m *Memory) Describe(ch chan<- *prometheus.Desc) {
	m.invalidations.Describe(ch)
}

// Collect fetches metrics for use by prometheus
func (m *Memory) Collect(ch chan<- prometheus.Metric) {
	m.invalidations.Collect(ch)
}
