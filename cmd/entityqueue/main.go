package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/spf13/cobra"
)

type FlagParams struct {
	// ConfigFile is the YAML config file used by the 'server' command
	ConfigFile string
	// Endpoint is the address of the entityqueue daemon in the form `<scheme>://<host>:<port>`
	Endpoint string
	// Actor is the uid of the user on whose behalf the request is made
	Actor string
	// Timeout is the maximum time a single command waits on the daemon
	Timeout time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &FlagParams{}

	rootCmd := &cobra.Command{
		Use:   "entityqueue",
		Short: "Manage entity queues",
		Long: `entityqueue manages ordered lists of references to entities, organized into
queues and subqueues. Run 'entityqueue server' to start the daemon, all other
commands talk to a running daemon.`,
		Version:       entityqueue.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint",
		"http://"+daemon.DefaultListenAddress, "entityqueue daemon endpoint")
	rootCmd.PersistentFlags().StringVar(&flags.Actor, "actor",
		"", "uid of the user on whose behalf requests are made")
	rootCmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout",
		30*time.Second, "request timeout")

	rootCmd.AddCommand(newServerCommand(flags))
	rootCmd.AddCommand(newCreateCommand(flags))
	rootCmd.AddCommand(newUpdateCommand(flags))
	rootCmd.AddCommand(newDeleteCommand(flags))
	rootCmd.AddCommand(newInfoCommand(flags))
	rootCmd.AddCommand(newListCommand(flags))
	rootCmd.AddCommand(newExportCommand(flags))
	rootCmd.AddCommand(newSubqueuesCommand(flags))
	rootCmd.AddCommand(newHandlersCommand(flags))
	rootCmd.AddCommand(newEntityTypesCommand(flags))
	rootCmd.AddCommand(newUninstallModuleCommand(flags))
	rootCmd.AddCommand(newChecksumCommand(flags))

	return rootCmd
}

func createClient(flags *FlagParams) (*entityqueue.Client, error) {
	c, err := entityqueue.NewClient(entityqueue.ClientOptions{
		Endpoint: flags.Endpoint,
		Actor:    flags.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

// withClient calls fn with a client and a context which expires after flags.Timeout
func withClient(cmd *cobra.Command, flags *FlagParams,
	fn func(ctx context.Context, c *entityqueue.Client) error) error {
	c, err := createClient(flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.Timeout)
	defer cancel()
	return fn(ctx, c)
}
