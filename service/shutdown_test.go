package service_test

import (
	"context"
	"testing"

	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/kapetan-io/entityqueue/internal"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown(t *testing.T) {
	for _, tc := range backends() {
		t.Run(tc.Name, func(t *testing.T) {
			testShutdown(t, tc.Setup, tc.Persistent)
		})
	}
}

func testShutdown(t *testing.T, setup NewStorageFunc, persistent bool) {
	t.Run("CreateThenShutdown", func(t *testing.T) {
		if !persistent {
			t.Skip("skipping persistence test for non-persistent backend")
		}
		storage := setup(t)

		// First daemon: create the queues
		d1, c1, ctx1 := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: storage})
		var res transport.QueueInfo
		require.NoError(t, c1.QueuesCreate(ctx1, newQueueInfo("featured_articles", "simple"), &res))
		require.NoError(t, c1.QueuesCreate(ctx1, newQueueInfo("regions", "multiple"), &res))
		var sub transport.Subqueue
		require.NoError(t, c1.SubqueuesCreate(ctx1, &transport.Subqueue{Name: "regions_north", Queue: "regions"}, &sub))
		d1.Shutdown(t)

		// Second daemon: the queues and subqueues survived
		d2, c2, ctx2 := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: storage})
		defer d2.Shutdown(t)

		var list transport.QueuesListResponse
		require.NoError(t, c2.QueuesList(ctx2, &list, nil))
		require.Len(t, list.Items, 2)
		assert.Equal(t, "featured_articles", list.Items[0].ID)
		assert.Equal(t, []string{"node"}, list.Items[0].Dependencies.Module)

		var subs transport.SubqueuesListResponse
		require.NoError(t, c2.SubqueuesList(ctx2, "regions", &subs, nil))
		require.Len(t, subs.Items, 1)
		assert.Equal(t, "regions_north", subs.Items[0].Name)
	})

	t.Run("DefaultQueuesLeftUntouched", func(t *testing.T) {
		if !persistent {
			t.Skip("skipping persistence test for non-persistent backend")
		}
		storage := setup(t)
		defaults := []types.QueueInfo{
			{
				ID:         "featured_articles",
				Label:      "Featured Articles",
				Status:     true,
				TargetType: "node",
				Handler:    "simple",
			},
		}

		d1, c1, ctx1 := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: storage, DefaultQueues: defaults})
		var first transport.QueueInfo
		require.NoError(t, c1.QueuesInfo(ctx1, &transport.QueuesInfoRequest{ID: "featured_articles"}, &first))

		// Changes made by users survive a restart
		update := first
		update.Label = "Editors Choice"
		var res transport.QueueInfo
		require.NoError(t, c1.QueuesUpdate(ctx1, &update, &res))
		d1.Shutdown(t)

		d2, c2, ctx2 := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: storage, DefaultQueues: defaults})
		defer d2.Shutdown(t)

		var second transport.QueueInfo
		require.NoError(t, c2.QueuesInfo(ctx2, &transport.QueuesInfoRequest{ID: "featured_articles"}, &second))
		assert.Equal(t, first.UUID, second.UUID)
		assert.Equal(t, "Editors Choice", second.Label)

		var subs transport.SubqueuesListResponse
		require.NoError(t, c2.SubqueuesList(ctx2, "featured_articles", &subs, nil))
		assert.Len(t, subs.Items, 1)
	})

	t.Run("RequestsAfterShutdown", func(t *testing.T) {
		d, _, _ := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		s := d.Service()
		d.Shutdown(t)

		ctx := context.Background()
		var res transport.QueueInfo
		err := s.QueuesCreate(ctx, "admin", newQueueInfo("featured_articles", "simple"), &res)
		assert.ErrorIs(t, err, internal.ErrServiceShutdown)

		var list transport.QueuesListResponse
		err = s.QueuesList(ctx, "admin", &transport.QueuesListRequest{}, &list)
		assert.ErrorIs(t, err, internal.ErrServiceShutdown)

		health, err := s.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, transport.HealthStatusFail, health.Status)

		// Shutdown is safe to call more than once
		require.NoError(t, s.Shutdown(ctx))
	})
}
