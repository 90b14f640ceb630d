package cache

import (
	"context"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// TagQueueList is the list cache tag of queues, invalidated whenever any queue is saved or deleted
	TagQueueList = "config:entity_queue_list"
	// TagViewsData is invalidated whenever a queue is saved or deleted, as queues alter views
	// data relationships.
	TagViewsData = "views_data"
)

// Invalidator invalidates cache tags. Consumers which cache data under a tag compare the
// Checksum of their tags to find out if the cached data is stale.
type Invalidator interface {
	// InvalidateTags marks all data cached under the tags as stale
	InvalidateTags(ctx context.Context, tags []string) error
	// Checksum returns the sum of invalidations for the tags. The checksum changes each time
	// one of the tags is invalidated.
	Checksum(ctx context.Context, tags ...string) (int64, error)
	// Close releases any connections held by the invalidator
	Close(ctx context.Context) error
}

// MergeTags merges the tag lists into a single sorted list without duplicates
func MergeTags(lists ...[]string) []string {
	var results []string
	for _, l := range lists {
		results = append(results, l...)
	}
	slices.Sort(results)
	return slices.Compact(results)
}

// newInvalidationCounter counts invalidations by tag, it is shared by every Invalidator
// implementation so the metric name is consistent regardless of the backend.
func newInvalidationCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_tag_invalidations_total",
		Help: "The number of times a cache tag was invalidated",
	}, []string{"tag"})
}
