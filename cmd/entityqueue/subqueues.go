package main

import (
	"context"
	"fmt"

	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/spf13/cobra"
)

func newSubqueuesCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subqueues",
		Short: "Manage the subqueues of a queue",
		Long: `Manage the subqueues of a queue. Queues using the 'simple' handler always
have exactly one subqueue which shares the name of the queue.`,
	}
	cmd.AddCommand(newSubqueuesListCommand(flags))
	cmd.AddCommand(newSubqueuesCreateCommand(flags))
	cmd.AddCommand(newSubqueuesDeleteCommand(flags))
	return cmd
}

func newSubqueuesListCommand(flags *FlagParams) *cobra.Command {
	var (
		limit  int
		pivot  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list [flags] <queue-id>",
		Short: "List the subqueues of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.SubqueuesListResponse
				err := c.SubqueuesList(ctx, args[0], &resp, &entityqueue.ListOptions{Limit: limit, Pivot: pivot})
				if err != nil {
					return fmt.Errorf("failed to list subqueues: %w", err)
				}

				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subqueues found")
					return nil
				}

				rows := make([][]string, 0, len(resp.Items))
				for _, s := range resp.Items {
					rows = append(rows, []string{s.Name, s.Label, s.Module, s.UID, formatTime(s.UpdatedAt)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Label", "Module", "Owner", "Updated"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum results to return")
	cmd.Flags().StringVar(&pivot, "pivot", "", "Subqueue name to start listing from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSubqueuesCreateCommand(flags *FlagParams) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "create [flags] <queue-id> <name>",
		Short: "Add a subqueue to a queue",
		Long: `Add a subqueue to a queue. Only queues whose handler supports multiple
subqueues accept new subqueues. The name must be unique across all queues.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &transport.Subqueue{Queue: args[0], Name: args[1], Label: label}
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var created transport.Subqueue
				if err := c.SubqueuesCreate(ctx, req, &created); err != nil {
					return fmt.Errorf("failed to create subqueue: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Successfully created subqueue '%s' in queue '%s'\n",
					created.Name, created.Queue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human-readable name of the subqueue (the handler provides one when omitted)")
	return cmd
}

func newSubqueuesDeleteCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <queue-id> <name>",
		Short: "Remove a subqueue from a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				req := &transport.SubqueuesDeleteRequest{Queue: args[0], Name: args[1]}
				if err := c.SubqueuesDelete(ctx, req); err != nil {
					return fmt.Errorf("failed to delete subqueue: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Successfully deleted subqueue '%s'\n", args[1])
				return nil
			})
		},
	}
}
