package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/spf13/cobra"
)

func newHandlersCommand(flags *FlagParams) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "handlers",
		Short: "List the available queue handlers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.HandlersListResponse
				if err := c.HandlersList(ctx, &resp); err != nil {
					return fmt.Errorf("failed to list handlers: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				rows := make([][]string, 0, len(resp.Items))
				for _, h := range resp.Items {
					var settings []string
					for _, f := range h.SettingsForm {
						settings = append(settings, f.Name)
					}
					rows = append(rows, []string{h.ID, h.Title,
						formatBool(h.SupportsMultipleSubqueues), formatList(settings)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Multiple subqueues", "Settings"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newEntityTypesCommand(flags *FlagParams) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "entity-types",
		Short: "List the entity types a queue may target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.EntityTypesListResponse
				if err := c.EntityTypesList(ctx, &resp); err != nil {
					return fmt.Errorf("failed to list entity types: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				rows := make([][]string, 0, len(resp.Items))
				for _, et := range resp.Items {
					rows = append(rows, []string{et.ID, et.Label, et.Provider})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Label", "Provider"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newUninstallModuleCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall-module <module>",
		Short: "Remove a module and the entity types it provides",
		Long: `Remove a module and the entity types it provides. The request is refused
while any queue depends upon the module; delete those queues first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.ModulesUninstallResponse
				req := &transport.ModulesUninstallRequest{Module: args[0]}
				if err := c.ModulesUninstall(ctx, req, &resp); err != nil {
					return fmt.Errorf("failed to uninstall module: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Successfully uninstalled module '%s' (entity types removed: %s)\n",
					args[0], formatList(resp.EntityTypes))
				return nil
			})
		},
	}
}

func newChecksumCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <tag>...",
		Short: "Show the invalidation checksum of cache tags",
		Long: `Show the invalidation checksum of cache tags. The checksum changes each time
one of the tags is invalidated, IE: 'config:entity_queue_list' changes when
any queue is saved or deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *entityqueue.Client) error {
				var resp transport.CacheChecksumResponse
				if err := c.CacheChecksum(ctx, &transport.CacheChecksumRequest{Tags: args}, &resp); err != nil {
					return fmt.Errorf("failed to get checksum: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(resp.Checksum))
				return nil
			})
		},
	}
}
