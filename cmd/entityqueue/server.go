package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/config"
	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/spf13/cobra"
)

func newServerCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the entityqueue daemon",
		Long: `Start the entityqueue daemon server.

The server command starts the HTTP API server that handles queue operations.
Storage, cache, entity types and the queues loaded at startup are provided
by the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.ConfigFile, "config", "", "YAML config file")
	return cmd
}

func startServer(ctx context.Context, flags *FlagParams, w io.Writer) error {
	var file config.File
	if flags.ConfigFile != "" {
		var err error
		if file, err = config.LoadFile(flags.ConfigFile); err != nil {
			return fmt.Errorf("while reading config file: %w", err)
		}
	}

	var conf daemon.Config
	if err := config.ApplyConfigFile(ctx, &conf, file, w); err != nil {
		return fmt.Errorf("while applying config file: %w", err)
	}

	conf.Log.Info(fmt.Sprintf("entityqueue %s (%s/%s)", entityqueue.Version, runtime.GOARCH, runtime.GOOS))
	d, err := daemon.NewDaemon(ctx, conf)
	if err != nil {
		return fmt.Errorf("while creating daemon: %w", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(c)

	select {
	case <-c:
		return d.Shutdown(context.Background())
	case <-ctx.Done():
		return d.Shutdown(context.Background())
	}
}
