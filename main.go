// Command distlearn runs the processes of a distributed training run:
// the policy authority, remote policy hosts and actors
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "distlearn",
		Short:         "Distributed actor and policy manager training",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the YAML configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "server",
			Short: "Run the policy authority",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRuntime(cmd.Context(), configPath, "distlearn-server",
					runServer)
			},
		},
		&cobra.Command{
			Use:   "policy-host",
			Short: "Serve the policies of a remote policy manager",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRuntime(cmd.Context(), configPath,
					"distlearn-policy-host", runPolicyHost)
			},
		},
		newActorCommand(&configPath),
		newLocalCommand(&configPath),
		newCheckpointCommand(),
	)
	return root
}

func newActorCommand(configPath *string) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Run an actor against the policy authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if index < 0 {
				return fmt.Errorf("actor index must be >= 0, have %v", index)
			}
			return withRuntime(cmd.Context(), *configPath,
				"distlearn-actor", func(ctx context.Context, r *runtime) error {
					return runActor(ctx, r, index)
				})
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", 0, "index of the actor")
	return cmd
}

func newLocalCommand(configPath *string) *cobra.Command {
	var actors int
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run the authority and actors in a single process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), *configPath,
				"distlearn-local", func(ctx context.Context, r *runtime) error {
					n := actors
					if n <= 0 {
						n = r.config.Server.NumActors
					}
					return runLocal(ctx, r, n)
				})
		},
	}
	cmd.Flags().IntVarP(&actors, "actors", "n", 0,
		"number of actors (default: server.num_actors)")
	return cmd
}

func newCheckpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint <file>",
		Short: "Print a policy checkpoint as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCheckpoint(cmd.OutOrStdout(), args[0])
		},
	}
}
