package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/app"
	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

type rootOptions struct {
	configPath string
	timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "jobs",
		Short:         "Run engagement maintenance jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_PATH or ./config.yaml)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "maximum run time")

	cmd.AddCommand(newAutoTransitionCommand(opts))
	cmd.AddCommand(newRotateAuditCommand(opts))
	cmd.AddCommand(newRFIExpiryCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func newAutoTransitionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-transition",
		Short: "Advance records along automatic workflow edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, opts, func(ctx context.Context, c *app.Container) (domain.JobResult, error) {
				return c.Jobs.AutoTransitions(ctx)
			})
		},
	}
}

func newRotateAuditCommand(opts *rootOptions) *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "rotate-audit",
		Short: "Archive audit entries past the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, opts, func(ctx context.Context, c *app.Container) (domain.JobResult, error) {
				return c.Jobs.RotateAudit(ctx, olderThanDays)
			})
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "retention override in days (0 uses audit.retention_days)")
	return cmd
}

func newRFIExpiryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rfi-expiry",
		Short: "Notify assignees of RFIs close to or past their deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, opts, func(ctx context.Context, c *app.Container) (domain.JobResult, error) {
				return c.Jobs.RFIExpiry(ctx)
			})
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs the %s driver, configured %q", config.DriverPostgres, cfg.Database.Driver)
			}
			logger := app.NewLogger(cfg.Log)

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			results, err := postgres.Migrate(ctx, cfg.Database.DSN)
			if err != nil {
				return err
			}
			for _, r := range results {
				logger.Info("migration applied",
					slog.String("source", r.Source.Path),
					slog.Duration("duration", r.Duration),
				)
			}
			logger.Info("migrations complete", slog.Int("applied", len(results)))
			return nil
		},
	}
}

func (o *rootOptions) load() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

var errJobFailed = errors.New("job reported failures")

func runJob(cmd *cobra.Command, opts *rootOptions, job func(ctx context.Context, c *app.Container) (domain.JobResult, error)) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	res, jobErr := job(ctx, c)

	if err := c.Drain(ctx); err != nil {
		logger.Warn("hooks not drained", slog.String("error", err.Error()))
	}
	if jobErr != nil {
		return jobErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return errJobFailed
	}
	return nil
}
