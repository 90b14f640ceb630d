package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/duh-rpc/duh-go"
	"github.com/duh-rpc/duh-go/retry"
	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/config"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const exportPageSize = 100

var updateRetry = retry.Policy{Interval: retry.Sleep(100 * time.Millisecond), Attempts: 5}

// queueFlags are the flags shared by 'create' and 'update'
type queueFlags struct {
	label      string
	targetType string
	handler    string
	minSize    int
	maxSize    int
	actAsQueue bool
	disabled   bool
	settings   map[string]string
}

func (q *queueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.label, "label", "", "Human-readable name of the queue (defaults to the queue id)")
	cmd.Flags().StringVar(&q.targetType, "target-type", "node", "Entity type of the items the queue references")
	cmd.Flags().StringVar(&q.handler, "handler", "simple", "Handler which manages the queue (see 'handlers')")
	cmd.Flags().IntVar(&q.minSize, "min-size", 0, "Minimum number of items in a subqueue")
	cmd.Flags().IntVar(&q.maxSize, "max-size", 0, "Maximum number of items in a subqueue (0 for unlimited)")
	cmd.Flags().BoolVar(&q.actAsQueue, "act-as-queue", false,
		"Remove the oldest item when a subqueue is full instead of refusing new items")
	cmd.Flags().BoolVar(&q.disabled, "disabled", false, "Disable the queue")
	cmd.Flags().StringToStringVar(&q.settings, "setting", nil,
		"Handler configuration as key=value, may be repeated")
}

func newCreateCommand(flags *FlagParams) *cobra.Command {
	var q queueFlags
	cmd := &cobra.Command{
		Use:   "create [flags] <queue-id>",
		Short: "Create a new queue",
		Long: `Create a new queue. The queue id must contain only lowercase letters, numbers
and underscores.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, flags, &q, args[0])
		},
	}
	q.register(cmd)
	return cmd
}

func runCreate(cmd *cobra.Command, flags *FlagParams, q *queueFlags, id string) error {
	req := &transport.QueueInfo{
		ID:                   id,
		Label:                q.label,
		Status:               transport.Bool(!q.disabled),
		TargetType:           q.targetType,
		Handler:              q.handler,
		MinSize:              q.minSize,
		MaxSize:              q.maxSize,
		ActAsQueue:           q.actAsQueue,
		HandlerConfiguration: q.settings,
	}
	if req.Label == "" {
		req.Label = id
	}

	return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
		var created transport.QueueInfo
		if err := c.QueuesCreate(ctx, req, &created); err != nil {
			return fmt.Errorf("failed to create queue: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Successfully created queue '%s' (handler: %s, target-type: %s)\n",
			created.ID, created.Handler, created.TargetType)
		return nil
	})
}

func newUpdateCommand(flags *FlagParams) *cobra.Command {
	var q queueFlags
	cmd := &cobra.Command{
		Use:   "update [flags] <queue-id>",
		Short: "Update an existing queue",
		Long: `Update an existing queue configuration.
Only the flags provided will be updated, others remain unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, flags, &q, args[0])
		},
	}
	q.register(cmd)
	return cmd
}

func runUpdate(cmd *cobra.Command, flags *FlagParams, q *queueFlags, id string) error {
	changed := cmd.Flags().Changed
	if !slices.ContainsFunc([]string{"label", "target-type", "handler", "min-size", "max-size",
		"act-as-queue", "disabled", "setting"}, changed) {
		return fmt.Errorf("no update flags provided (use --help to see available options)")
	}

	return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
		// The update is a read-modify-write; storage asks for a retry if another write wins the race
		var fatal error
		err := retry.On(ctx, updateRetry, func(ctx context.Context, _ int) error {
			fatal = nil
			err := updateQueue(ctx, c, changed, q, id)
			var d duh.Error
			if errors.As(err, &d) && d.Code() == duh.CodeRetryRequest {
				return err
			}
			fatal = err
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to update queue: %w", err)
		}
		if fatal != nil {
			return fatal
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Successfully updated queue '%s'\n", id)
		return nil
	})
}

func updateQueue(ctx context.Context, c *entityqueue.Client, changed func(string) bool, q *queueFlags,
	id string) error {
	var req transport.QueueInfo
	if err := c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: id}, &req); err != nil {
		return fmt.Errorf("failed to get current queue info: %w", err)
	}

	if changed("label") {
		req.Label = q.label
	}
	if changed("target-type") {
		req.TargetType = q.targetType
	}
	if changed("handler") {
		req.Handler = q.handler
	}
	if changed("min-size") {
		req.MinSize = q.minSize
	}
	if changed("max-size") {
		req.MaxSize = q.maxSize
	}
	if changed("act-as-queue") {
		req.ActAsQueue = q.actAsQueue
	}
	if changed("disabled") {
		req.Status = transport.Bool(!q.disabled)
	}
	if changed("setting") {
		if req.HandlerConfiguration == nil {
			req.HandlerConfiguration = make(map[string]string, len(q.settings))
		}
		maps.Copy(req.HandlerConfiguration, q.settings)
	}

	var updated transport.QueueInfo
	if err := c.QueuesUpdate(ctx, &req, &updated); err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}
	return nil
}

func newDeleteCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <queue-id>...",
		Short: "Delete queues",
		Long: `Delete one or more queues along with all of their subqueues.
This operation is irreversible.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				if err := c.QueuesDelete(ctx, &transport.QueuesDeleteRequest{IDs: args}); err != nil {
					return fmt.Errorf("failed to delete queue: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Successfully deleted %d queue(s)\n", len(args))
				return nil
			})
		},
	}
}

func newInfoCommand(flags *FlagParams) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <queue-id>",
		Short: "Show the configuration of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var info transport.QueueInfo
				if err := c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: args[0]}, &info); err != nil {
					return fmt.Errorf("failed to get queue info: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, info)
				}

				var settings []string
				for _, k := range slices.Sorted(maps.Keys(info.HandlerConfiguration)) {
					settings = append(settings, k+"="+info.HandlerConfiguration[k])
				}

				rows := [][]string{
					{"ID", info.ID},
					{"UUID", info.UUID},
					{"Label", info.Label},
					{"Status", formatStatus(info.Enabled())},
					{"Target type", info.TargetType},
					{"Handler", info.Handler},
					{"Settings", formatList(settings)},
					{"Min size", strconv.Itoa(info.MinSize)},
					{"Max size", formatMaxSize(info.MaxSize)},
					{"Act as queue", formatBool(info.ActAsQueue)},
					{"Depends on", formatList(info.Dependencies.Module)},
					{"Created", formatTime(info.CreatedAt)},
					{"Updated", formatTime(info.UpdatedAt)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(flags *FlagParams) *cobra.Command {
	var (
		limit      int
		pivot      string
		targetType string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List queues",
		Long: `List queues ordered by id with pagination support. When --target-type is
provided every queue which references that entity type is listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.QueuesListResponse
				var err error
				if targetType != "" {
					err = c.QueuesListByTargetType(ctx, targetType, &resp)
				} else {
					err = c.QueuesList(ctx, &resp, &entityqueue.ListOptions{Limit: limit, Pivot: pivot})
				}
				if err != nil {
					return fmt.Errorf("failed to list queues: %w", err)
				}

				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No queues found")
					return nil
				}

				rows := make([][]string, 0, len(resp.Items))
				for _, q := range resp.Items {
					rows = append(rows, []string{q.ID, q.Label, q.TargetType, q.Handler,
						formatStatus(q.Enabled()), formatMaxSize(q.MaxSize), formatTime(q.UpdatedAt)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Label", "Target type", "Handler", "Status", "Max size", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintf(cmd.ErrOrStderr(), "Found %d queue(s)\n", len(resp.Items))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum results to return")
	cmd.Flags().StringVar(&pivot, "pivot", "", "Queue id to start listing from")
	cmd.Flags().StringVar(&targetType, "target-type", "", "Only list queues which reference this entity type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// exportFile is the portion of a config file which holds queues
type exportFile struct {
	Queues []config.Queue `yaml:"queues"`
}

func newExportCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "export [queue-id]...",
		Short: "Export queues as YAML",
		Long: `Export the configuration of queues in the format of the 'queues' section of a
config file. Queues in a config file are created when the server starts. If no
queue ids are provided every queue is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var queues []transport.QueueInfo
				if len(args) == 0 {
					var err error
					if queues, err = listAllQueues(ctx, c); err != nil {
						return fmt.Errorf("failed to list queues: %w", err)
					}
				}
				for _, id := range args {
					var info transport.QueueInfo
					if err := c.QueuesInfo(ctx, &transport.QueuesInfoRequest{ID: id}, &info); err != nil {
						return fmt.Errorf("failed to get queue info: %w", err)
					}
					queues = append(queues, info)
				}

				var file exportFile
				for _, q := range queues {
					file.Queues = append(file.Queues, config.FromQueueInfo(types.QueueInfo{
						ID:                   q.ID,
						Label:                q.Label,
						Status:               q.Enabled(),
						TargetType:           q.TargetType,
						MinSize:              q.MinSize,
						MaxSize:              q.MaxSize,
						ActAsQueue:           q.ActAsQueue,
						Handler:              q.Handler,
						HandlerConfiguration: q.HandlerConfiguration,
					}))
				}

				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(file); err != nil {
					return fmt.Errorf("while encoding queues: %w", err)
				}
				return enc.Close()
			})
		},
	}
}

// listAllQueues pages through every queue. The pivot is included in each page so it is skipped.
func listAllQueues(ctx context.Context, c *entityqueue.Client) ([]transport.QueueInfo, error) {
	var results []transport.QueueInfo
	opts := entityqueue.ListOptions{Limit: exportPageSize}
	for {
		var resp transport.QueuesListResponse
		if err := c.QueuesList(ctx, &resp, &opts); err != nil {
			return nil, err
		}

		items := resp.Items
		if opts.Pivot != "" && len(items) != 0 && items[0].ID == opts.Pivot {
			items = items[1:]
		}
		results = append(results, items...)

		if len(resp.Items) < opts.Limit {
			return results, nil
		}
		opts.Pivot = resp.Items[len(resp.Items)-1].ID
	}
}
