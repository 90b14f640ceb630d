package service_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestQueuesStorage(t *testing.T) {
	for _, tc := range backends() {
		t.Run(tc.Name, func(t *testing.T) {
			testQueues(t, tc.Setup)
		})
	}
}

func testQueues(t *testing.T, setup NewStorageFunc) {
	defer goleak.VerifyNone(t, goleakOptions...)

	t.Run("CRUD", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		t.Run("Create", func(t *testing.T) {
			id := randomID("queue_")
			now := clock.Now().UTC()

			var created transport.QueueInfo
			require.NoError(t, c.QueuesCreate(ctx, &transport.QueueInfo{
				ID:                   id,
				Label:                "Featured Articles",
				Status:               transport.Bool(true),
				TargetType:           "node",
				Handler:              "simple",
				MinSize:              1,
				MaxSize:              10,
				ActAsQueue:           true,
				HandlerConfiguration: map[string]string{"region": "front_page"},
			}, &created))
			assert.NotEmpty(t, created.UUID)
			assert.Equal(t, []string{"node"}, created.Dependencies.Module)

			var info transport.QueueInfo
			require.NoError(t, c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: id}, &info))
			assert.Equal(t, id, info.ID)
			assert.Equal(t, created.UUID, info.UUID)
			assert.Equal(t, "Featured Articles", info.Label)
			assert.Equal(t, transport.Bool(true), info.Status)
			assert.Equal(t, "node", info.TargetType)
			assert.Equal(t, "simple", info.Handler)
			assert.Equal(t, 1, info.MinSize)
			assert.Equal(t, 10, info.MaxSize)
			assert.True(t, info.ActAsQueue)
			assert.Equal(t, map[string]string{"region": "front_page"}, info.HandlerConfiguration)
			assert.Equal(t, []string{"node"}, info.Dependencies.Module)
			assert.False(t, info.CreatedAt.Before(now))
			assert.False(t, info.UpdatedAt.Before(now))

			t.Run("SimpleCreatesSubqueue", func(t *testing.T) {
				var subs transport.SubqueuesListResponse
				require.NoError(t, c.SubqueuesList(ctx, id, &subs, nil))
				require.Len(t, subs.Items, 1)
				assert.Equal(t, id, subs.Items[0].Name)
				assert.Equal(t, id, subs.Items[0].Queue)
				assert.Equal(t, "Featured Articles", subs.Items[0].Label)
				assert.Equal(t, transport.DefaultActor, subs.Items[0].UID)
				assert.NotEmpty(t, subs.Items[0].UUID)
			})
		})

		queues := createRandomQueues(t, ctx, c, 20)

		t.Run("Update", func(t *testing.T) {
			l := queues[10]
			update := l
			update.Label = "Updated Label"
			update.MaxSize = l.MaxSize + 5
			update.Status = transport.Bool(false)

			var updated transport.QueueInfo
			require.NoError(t, c.QueuesUpdate(ctx, &update, &updated))

			var r transport.QueueInfo
			require.NoError(t, c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: l.ID}, &r))
			assert.Equal(t, "Updated Label", r.Label)
			assert.Equal(t, l.MaxSize+5, r.MaxSize)
			assert.Equal(t, transport.Bool(false), r.Status)
			assert.Equal(t, l.UUID, r.UUID)
			assert.True(t, l.CreatedAt.Equal(r.CreatedAt))
			assert.False(t, r.UpdatedAt.Before(l.UpdatedAt))
		})

		t.Run("OmittedStatus", func(t *testing.T) {
			id := randomID("queue_")
			req := newQueueInfo(id, "multiple")
			req.Status = nil

			var created transport.QueueInfo
			require.NoError(t, c.QueuesCreate(ctx, req, &created))
			assert.Equal(t, transport.Bool(true), created.Status)

			req.Status = transport.Bool(false)
			var updated transport.QueueInfo
			require.NoError(t, c.QueuesUpdate(ctx, req, &updated))
			assert.Equal(t, transport.Bool(false), updated.Status)

			// An update which omits the status leaves the queue disabled
			req.Status = nil
			req.Label = "Relabeled"
			require.NoError(t, c.QueuesUpdate(ctx, req, &updated))
			assert.Equal(t, "Relabeled", updated.Label)
			assert.Equal(t, transport.Bool(false), updated.Status)
		})

		t.Run("UpdateTargetTypeChangesDependencies", func(t *testing.T) {
			l := queues[11]
			update := l
			update.TargetType = "taxonomy_term"

			var updated transport.QueueInfo
			require.NoError(t, c.QueuesUpdate(ctx, &update, &updated))
			assert.Equal(t, []string{"taxonomy"}, updated.Dependencies.Module)
		})

		t.Run("Delete", func(t *testing.T) {
			l := queues[5]
			require.NoError(t, c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: []string{l.ID}}))

			var info transport.QueueInfo
			err := c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: l.ID}, &info)
			require.Error(t, err)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "queue does not exist; no such queue named '"+l.ID+"'", e.Message())
			assert.Equal(t, duh.CodeBadRequest, e.Code())

			var subs transport.SubqueuesListResponse
			err = c.SubqueuesList(ctx, l.ID, &subs, nil)
			require.Error(t, err)
		})

		t.Run("DeleteMany", func(t *testing.T) {
			ids := []string{queues[6].ID, queues[7].ID}
			require.NoError(t, c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: ids}))

			var list transport.QueuesListResponse
			require.NoError(t, c.QueuesList(ctx, &list, nil))
			assert.NotContains(t, entityqueue.CollectIDs(list.Items), queues[6].ID)
			assert.NotContains(t, entityqueue.CollectIDs(list.Items), queues[7].ID)
		})
	})

	t.Run("List", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		queues := createRandomQueues(t, ctx, c, 50)

		var list transport.QueuesListResponse
		require.NoError(t, c.QueuesList(ctx, &list, nil))
		assert.Equal(t, 50, len(list.Items))

		t.Run("MoreThanAvailable", func(t *testing.T) {
			var more transport.QueuesListResponse
			require.NoError(t, c.QueuesList(ctx, &more, &entityqueue.ListOptions{Limit: 20_000}))
			assert.Equal(t, 50, len(more.Items))

			compareQueueInfo(t, &queues[0], &more.Items[0])
			compareQueueInfo(t, &queues[50-1], &more.Items[len(more.Items)-1])
		})
		t.Run("LessThanAvailable", func(t *testing.T) {
			var less transport.QueuesListResponse
			require.NoError(t, c.QueuesList(ctx, &less, &entityqueue.ListOptions{Limit: 30}))
			assert.Equal(t, 30, len(less.Items))

			compareQueueInfo(t, &queues[0], &less.Items[0])
			compareQueueInfo(t, &queues[30-1], &less.Items[len(less.Items)-1])
		})
		t.Run("GetOne", func(t *testing.T) {
			var one transport.QueuesListResponse
			require.NoError(t, c.QueuesList(ctx, &one, &entityqueue.ListOptions{Pivot: queues[20].ID, Limit: 1}))
			assert.Equal(t, 1, len(one.Items))

			compareQueueInfo(t, &queues[20], &one.Items[0])
		})
		t.Run("WithPivot", func(t *testing.T) {
			var pivot transport.QueuesListResponse
			err := c.QueuesList(ctx, &pivot, &entityqueue.ListOptions{Pivot: queues[20].ID, Limit: 10})
			require.NoError(t, err)

			assert.Equal(t, 10, len(pivot.Items))
			for i := range pivot.Items {
				compareQueueInfo(t, &queues[i+20], &pivot.Items[i])
			}

			t.Run("PageIncludesPivot", func(t *testing.T) {
				var page transport.QueuesListResponse
				err = c.QueuesList(ctx, &page, &entityqueue.ListOptions{Pivot: queues[9].ID, Limit: 10})
				require.NoError(t, err)
				compareQueueInfo(t, &queues[9], &page.Items[0])
				compareQueueInfo(t, &queues[18], &page.Items[9])
			})
		})
		t.Run("PivotNotFound", func(t *testing.T) {
			var page transport.QueuesListResponse
			require.NoError(t, c.QueuesList(ctx, &page, &entityqueue.ListOptions{Pivot: "pueue_00000", Limit: 1}))

			// Should return the first queue in the list
			require.Equal(t, 1, len(page.Items))
			assert.Equal(t, queues[0].ID, page.Items[0].ID)
		})
	})

	t.Run("ListByTargetType", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		var res transport.QueueInfo
		users := newQueueInfo("featured_users", "multiple")
		users.TargetType = "user"
		require.NoError(t, c.QueuesCreate(ctx, users, &res))
		require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("featured_articles", "simple"), &res))
		require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("promoted_articles", "multiple"), &res))

		var list transport.QueuesListResponse
		require.NoError(t, c.QueuesListByTargetType(ctx, "node", &list))
		assert.Equal(t, []string{"featured_articles", "promoted_articles"}, entityqueue.CollectIDs(list.Items))

		list = transport.QueuesListResponse{}
		require.NoError(t, c.QueuesListByTargetType(ctx, "user", &list))
		assert.Equal(t, []string{"featured_users"}, entityqueue.CollectIDs(list.Items))

		list = transport.QueuesListResponse{}
		require.NoError(t, c.QueuesListByTargetType(ctx, "media", &list))
		assert.Empty(t, list.Items)
	})

	t.Run("Subqueues", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		var res transport.QueueInfo
		require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("regions", "multiple"), &res))
		require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("front_page", "simple"), &res))

		t.Run("MultipleHasNoSubqueues", func(t *testing.T) {
			var subs transport.SubqueuesListResponse
			require.NoError(t, c.SubqueuesList(ctx, "regions", &subs, nil))
			assert.Empty(t, subs.Items)
		})

		t.Run("CreateWithActor", func(t *testing.T) {
			editor := c.WithActor("editor")
			for _, name := range []string{"regions_north", "regions_south", "regions_west"} {
				var sub transport.Subqueue
				require.NoError(t, editor.SubqueuesCreate(ctx, &transport.Subqueue{
					Name:  name,
					Queue: "regions",
					Label: random.String("Label ", 5),
				}, &sub))
				assert.Equal(t, "editor", sub.UID)
				assert.NotEmpty(t, sub.UUID)
			}

			var subs transport.SubqueuesListResponse
			require.NoError(t, c.SubqueuesList(ctx, "regions", &subs, nil))
			require.Len(t, subs.Items, 3)
			assert.Equal(t, "regions_north", subs.Items[0].Name)
			assert.Equal(t, "regions_west", subs.Items[2].Name)

			t.Run("Pivot", func(t *testing.T) {
				var page transport.SubqueuesListResponse
				require.NoError(t, c.SubqueuesList(ctx, "regions", &page,
					&entityqueue.ListOptions{Pivot: "regions_south", Limit: 1}))
				require.Len(t, page.Items, 1)
				assert.Equal(t, "regions_south", page.Items[0].Name)
			})
		})

		t.Run("Delete", func(t *testing.T) {
			require.NoError(t, c.SubqueuesDelete(ctx, &transport.SubqueuesDeleteRequest{
				Queue: "regions",
				Name:  "regions_west",
			}))

			var subs transport.SubqueuesListResponse
			require.NoError(t, c.SubqueuesList(ctx, "regions", &subs, nil))
			assert.Len(t, subs.Items, 2)
		})

		t.Run("Errors", func(t *testing.T) {
			for _, test := range []struct {
				Name string
				Req  *transport.Subqueue
				Msg  string
				Code int
			}{
				{
					Name: "SimpleOnlyOne",
					Req:  &transport.Subqueue{Name: "front_page_two", Queue: "front_page"},
					Msg:  "queue 'front_page' has handler 'simple' which does not support multiple subqueues",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "AlreadyExists",
					Req:  &transport.Subqueue{Name: "regions_north", Queue: "regions"},
					Msg:  "subqueue 'regions_north' already exists",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "NoSuchQueue",
					Req:  &transport.Subqueue{Name: "nowhere", Queue: "no_such_queue"},
					Msg:  "queue does not exist; no such queue named 'no_such_queue'",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "InvalidName",
					Req:  &transport.Subqueue{Name: "North Region", Queue: "regions"},
					Msg: "subqueue name is invalid; 'North Region' must contain only lowercase " +
						"letters, numbers, and underscores",
					Code: duh.CodeBadRequest,
				},
			} {
				t.Run(test.Name, func(t *testing.T) {
					var sub transport.Subqueue
					err := c.SubqueuesCreate(ctx, test.Req, &sub)
					var e duh.Error
					require.True(t, errors.As(err, &e))
					assert.Equal(t, test.Msg, e.Message())
					assert.Equal(t, test.Code, e.Code())
				})
			}

			t.Run("DeleteWrongQueue", func(t *testing.T) {
				err := c.SubqueuesDelete(ctx, &transport.SubqueuesDeleteRequest{
					Queue: "front_page",
					Name:  "regions_north",
				})
				var e duh.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "subqueue does not exist; no subqueue named 'regions_north' in queue 'front_page'",
					e.Message())
			})

			t.Run("DeleteSimpleSubqueue", func(t *testing.T) {
				err := c.SubqueuesDelete(ctx, &transport.SubqueuesDeleteRequest{
					Queue: "front_page",
					Name:  "front_page",
				})
				var e duh.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, duh.CodeBadRequest, e.Code())
				assert.Equal(t, "subqueue 'front_page' cannot be deleted; queue 'front_page' has handler "+
					"'simple' which does not support multiple subqueues", e.Message())

				var subs transport.SubqueuesListResponse
				require.NoError(t, c.SubqueuesList(ctx, "front_page", &subs, nil))
				assert.Len(t, subs.Items, 1)
			})

			t.Run("SimpleNameTaken", func(t *testing.T) {
				err := c.QueuesCreate(ctx, newQueueInfo("regions_north", "simple"), &res)
				var e duh.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, duh.CodeBadRequest, e.Code())
				assert.Equal(t, "subqueue 'regions_north' already exists in queue 'regions'", e.Message())

				err = c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: "regions_north"}, &res)
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "queue does not exist; no such queue named 'regions_north'", e.Message())
			})

			t.Run("DeleteNoSuchSubqueue", func(t *testing.T) {
				err := c.SubqueuesDelete(ctx, &transport.SubqueuesDeleteRequest{
					Queue: "regions",
					Name:  "regions_east",
				})
				var e duh.Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "subqueue does not exist; no such subqueue named 'regions_east'", e.Message())
			})
		})

		t.Run("DeleteQueueRemovesSubqueues", func(t *testing.T) {
			require.NoError(t, c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: []string{"regions"}}))

			// Re-creating the queue must not resurrect the subqueues of the deleted queue
			require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("regions", "multiple"), &res))
			var subs transport.SubqueuesListResponse
			require.NoError(t, c.SubqueuesList(ctx, "regions", &subs, nil))
			assert.Empty(t, subs.Items)
		})
	})

	t.Run("Modules", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		var res transport.QueueInfo
		terms := newQueueInfo("featured_terms", "simple")
		terms.TargetType = "taxonomy_term"
		require.NoError(t, c.QueuesCreate(ctx, terms, &res))
		assert.Equal(t, []string{"taxonomy"}, res.Dependencies.Module)

		t.Run("UninstallRequiredModule", func(t *testing.T) {
			var resp transport.ModulesUninstallResponse
			err := c.ModulesUninstall(ctx, &transport.ModulesUninstallRequest{Module: "taxonomy"}, &resp)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "module 'taxonomy' is required by queues 'featured_terms'", e.Message())
			assert.Equal(t, duh.CodeBadRequest, e.Code())
		})

		t.Run("UninstallAfterDelete", func(t *testing.T) {
			require.NoError(t, c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: []string{"featured_terms"}}))

			var resp transport.ModulesUninstallResponse
			require.NoError(t, c.ModulesUninstall(ctx, &transport.ModulesUninstallRequest{Module: "taxonomy"}, &resp))
			assert.Equal(t, []string{"taxonomy_term"}, resp.EntityTypes)

			var types transport.EntityTypesListResponse
			require.NoError(t, c.EntityTypesList(ctx, &types))
			for _, et := range types.Items {
				assert.NotEqual(t, "taxonomy_term", et.ID)
			}

			err := c.QueuesCreate(ctx, terms, &res)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "target type is invalid; entity type 'taxonomy_term' does not exist", e.Message())
			assert.Equal(t, duh.CodeRequestFailed, e.Code())
		})
	})

	t.Run("Registries", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		var handlers transport.HandlersListResponse
		require.NoError(t, c.HandlersList(ctx, &handlers))
		require.Len(t, handlers.Items, 2)
		assert.Equal(t, "multiple", handlers.Items[0].ID)
		assert.True(t, handlers.Items[0].SupportsMultipleSubqueues)
		assert.Equal(t, "simple", handlers.Items[1].ID)
		assert.False(t, handlers.Items[1].SupportsMultipleSubqueues)

		var types transport.EntityTypesListResponse
		require.NoError(t, c.EntityTypesList(ctx, &types))
		require.NotEmpty(t, types.Items)
		var found bool
		for _, et := range types.Items {
			if et.ID == "node" {
				assert.Equal(t, "node", et.Provider)
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("CacheTags", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		checksum := func(tags ...string) int64 {
			var resp transport.CacheChecksumResponse
			require.NoError(t, c.CacheChecksum(ctx, &transport.CacheChecksumRequest{Tags: tags}, &resp))
			return resp.Checksum
		}
		require.Equal(t, int64(0), checksum("config:entity_queue_list", "views_data"))

		var res transport.QueueInfo
		req := newQueueInfo("featured_articles", "simple")
		require.NoError(t, c.QueuesCreate(ctx, req, &res))
		assert.Equal(t, int64(2), checksum("config:entity_queue_list", "views_data"))

		require.NoError(t, c.QueuesUpdate(ctx, req, &res))
		assert.Equal(t, int64(4), checksum("config:entity_queue_list", "views_data"))

		require.NoError(t, c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: []string{req.ID}}))
		assert.Equal(t, int64(3), checksum("config:entity_queue_list"))
		assert.Equal(t, int64(3), checksum("views_data"))

		t.Run("NoTags", func(t *testing.T) {
			var resp transport.CacheChecksumResponse
			err := c.CacheChecksum(ctx, &transport.CacheChecksumRequest{}, &resp)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "tags is invalid; must provide at least one cache tag", e.Message())
		})
	})

	t.Run("Errors", func(t *testing.T) {
		d, c, ctx := newDaemon(t, 10*clock.Second, daemon.Config{StorageConfig: setup(t)})
		defer d.Shutdown(t)

		var res transport.QueueInfo
		require.NoError(t, c.QueuesCreate(ctx, newQueueInfo("featured_articles", "simple"), &res))

		t.Run("QueuesCreate", func(t *testing.T) {
			for _, test := range []struct {
				Name string
				Req  *transport.QueueInfo
				Msg  string
				Code int
			}{
				{
					Name: "EmptyRequest",
					Req:  &transport.QueueInfo{},
					Msg:  "target type is invalid; cannot be empty",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "UnknownTargetType",
					Req: &transport.QueueInfo{
						ID:         "spaceships",
						Label:      "Spaceships",
						TargetType: "spaceship",
						Handler:    "simple",
					},
					Msg:  "target type is invalid; entity type 'spaceship' does not exist",
					Code: duh.CodeRequestFailed,
				},
				{
					Name: "UnknownHandler",
					Req: &transport.QueueInfo{
						ID:         "spaceships",
						Label:      "Spaceships",
						TargetType: "node",
						Handler:    "warp",
					},
					Msg:  "handler is invalid; handler 'warp' does not exist for queue 'spaceships'",
					Code: duh.CodeRequestFailed,
				},
				{
					Name: "EmptyID",
					Req: &transport.QueueInfo{
						Label:      "No ID",
						TargetType: "node",
						Handler:    "simple",
					},
					Msg:  "queue id is invalid; queue id cannot be empty",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "IDWhiteSpace",
					Req: &transport.QueueInfo{
						ID:         "Friendship is Magic",
						Label:      "Friendship",
						TargetType: "node",
						Handler:    "simple",
					},
					Msg: "queue id is invalid; 'Friendship is Magic' must contain only lowercase letters, " +
						"numbers, and underscores",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "IDMaxLength",
					Req: &transport.QueueInfo{
						ID:         strings.Repeat("a", 200),
						Label:      "Long",
						TargetType: "node",
						Handler:    "simple",
					},
					Msg:  "queue id is invalid; cannot be greater than '166' characters",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "EmptyLabel",
					Req: &transport.QueueInfo{
						ID:         "no_label",
						TargetType: "node",
						Handler:    "simple",
					},
					Msg:  "label is invalid; cannot be empty",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "NegativeMinSize",
					Req: &transport.QueueInfo{
						ID:         "negative",
						Label:      "Negative",
						TargetType: "node",
						Handler:    "simple",
						MinSize:    -1,
					},
					Msg:  "min size is invalid; cannot be negative number",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "MinGreaterThanMax",
					Req: &transport.QueueInfo{
						ID:         "backwards",
						Label:      "Backwards",
						TargetType: "node",
						Handler:    "simple",
						MinSize:    10,
						MaxSize:    5,
					},
					Msg:  "min size is too large; 10 cannot be greater than the max size 5",
					Code: duh.CodeBadRequest,
				},
				{
					Name: "AlreadyExists",
					Req:  newQueueInfo("featured_articles", "multiple"),
					Msg:  "invalid queue; 'featured_articles' already exists",
					Code: duh.CodeBadRequest,
				},
			} {
				t.Run(test.Name, func(t *testing.T) {
					var created transport.QueueInfo
					err := c.QueuesCreate(ctx, test.Req, &created)
					var e duh.Error
					require.True(t, errors.As(err, &e))
					assert.Equal(t, test.Msg, e.Message())
					assert.Equal(t, test.Code, e.Code())
				})
			}
		})

		t.Run("QueuesUpdate", func(t *testing.T) {
			var updated transport.QueueInfo
			err := c.QueuesUpdate(ctx, newQueueInfo("no_such_queue", "simple"), &updated)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "queue does not exist; no such queue named 'no_such_queue'", e.Message())
			assert.Equal(t, duh.CodeBadRequest, e.Code())
		})

		t.Run("QueuesDelete", func(t *testing.T) {
			for _, test := range []struct {
				Name string
				Req  *transport.QueuesDeleteRequest
				Msg  string
			}{
				{
					Name: "NoIDs",
					Req:  &transport.QueuesDeleteRequest{},
					Msg:  "queue id is invalid; queue id cannot be empty",
				},
				{
					Name: "NoSuchQueue",
					Req:  &transport.QueuesDeleteRequest{IDs: []string{"no_such_queue"}},
					Msg:  "queue does not exist; no such queue named 'no_such_queue'",
				},
			} {
				t.Run(test.Name, func(t *testing.T) {
					err := c.QueuesDelete(ctx, test.Req)
					var e duh.Error
					require.True(t, errors.As(err, &e))
					assert.Equal(t, test.Msg, e.Message())
					assert.Equal(t, duh.CodeBadRequest, e.Code())
				})
			}
		})

		t.Run("QueuesList", func(t *testing.T) {
			var list transport.QueuesListResponse
			err := c.QueuesList(ctx, &list, &entityqueue.ListOptions{Limit: -1})
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "limit is invalid; limit cannot be negative", e.Message())
		})

		t.Run("ModulesUninstall", func(t *testing.T) {
			var resp transport.ModulesUninstallResponse
			err := c.ModulesUninstall(ctx, &transport.ModulesUninstallRequest{}, &resp)
			var e duh.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, "module is invalid; cannot be empty", e.Message())
		})
	})
}
