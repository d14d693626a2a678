package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papertrade/session-engine/internal/config"
)

func main() {
	cfg, err := config.LoadSimulateFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	root := &cobra.Command{
		Use:          "simulate",
		Short:        "Run the seeded trading groups headless and print their results",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.InitDataPath, "data", cfg.InitDataPath, "initial data file (users and groups)")

	root.AddCommand(
		newRunCmd(&cfg),
		newGroupsCmd(&cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRunCmd(cfg *config.SimulateConfig) *cobra.Command {
	var (
		interval time.Duration
		groups   []string
		traders  bool
		seedVal  int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start every selected group, let the clocks run out and print leaderboards",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			sim, err := newSimulation(cfg.InitDataPath, seedVal)
			if err != nil {
				return err
			}
			ids, err := sim.selectGroups(groups)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				printWarn("no CREATED groups to run")
				return nil
			}

			res, err := sim.run(cmd.Context(), ids, interval, traders)
			if err != nil {
				return err
			}
			for _, r := range res {
				printLeaderboard(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", cfg.TickInterval, "time between ticks")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "group ids to run (default: all CREATED groups)")
	cmd.Flags().BoolVar(&traders, "traders", true, "place random orders for every member while the clocks run")
	cmd.Flags().Int64Var(&seedVal, "seed", 0, "random seed for prices and orders (0: time based)")
	return cmd
}

func newGroupsCmd(cfg *config.SimulateConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the groups of the initial data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := newSimulation(cfg.InitDataPath, 1)
			if err != nil {
				return err
			}
			printGroups(cmd.OutOrStdout(), sim.store.Sessions())
			return nil
		},
	}
}
