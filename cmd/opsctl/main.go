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

	"github.com/dropship-ops/opsdash/cmd/opsctl/cli"
	"github.com/dropship-ops/opsdash/internal/app"
	"github.com/dropship-ops/opsdash/internal/platform/db"
	"github.com/dropship-ops/opsdash/internal/shared"
	"github.com/dropship-ops/opsdash/jobs"
)

type exitCode int

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping opsctl")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := err.(exitCode); ok {
			os.Exit(int(code))
		}
		os.Exit(1)
	}
}

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func asError(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator commands for opsdash",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newJobsCmd(), newIdempotencyCmd())
	return root
}

func loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	var (
		trigger    string
		limit      int
		jsonOutput bool
	)
	triggerCmd := &cobra.Command{
		Use:       "trigger <" + jobs.TaskSourcingRun + "|" + jobs.TaskQueueDrain + ">",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskSourcingRun, jobs.TaskQueueDrain},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := cli.NewJobsCLI(cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			return asError(c.TriggerCommand(cmd.Context(), cli.TriggerOptions{
				Job:        args[0],
				Trigger:    trigger,
				Limit:      limit,
				JSONOutput: jsonOutput,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	triggerCmd.Flags().StringVar(&trigger, "trigger", "manual", "trigger recorded on a sourcing run (manual|scheduled)")
	triggerCmd.Flags().IntVar(&limit, "limit", 0, "maximum items for a queue drain (0 = batch size)")
	triggerCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := cli.NewJobsCLI(cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			return asError(c.StatsCommand(cmd.Context(), statsJSON, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON")

	var size int
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := cli.NewJobsCLI(cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			return asError(c.ScheduledCommand(cmd.Context(), size, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	scheduledCmd.Flags().IntVar(&size, "size", 10, "page size")

	jobsCmd.AddCommand(triggerCmd, statsCmd, scheduledCmd)
	return jobsCmd
}

func newIdempotencyCmd() *cobra.Command {
	var olderThan time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired idempotency keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := shared.NewIdempotencyStore(pool)
			return asError(cli.CleanupCommand(cmd.Context(), store, olderThan, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	cleanup.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "retention window")

	idem := &cobra.Command{Use: "idempotency", Short: "Manage idempotency keys"}
	idem.AddCommand(cleanup)
	return idem
}
