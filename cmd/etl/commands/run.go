package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/pipeline"
	"github.com/helix-tools/etl-go/producer"
)

var runSchedule string

func init() {
	runCmd.Flags().StringVar(&runSchedule, "schedule", "", `Cron spec (e.g. "0 3 * * *" or "@hourly"). Runs forever, one run per tick.`)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--schedule <cron spec>]",
	Short: "Runs the ETL job once, or repeatedly on a cron schedule.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if runSchedule == "" {
			return runOnce(ctx, cfg, cmd.OutOrStdout())
		}
		return runScheduled(ctx, cfg, runSchedule, cmd.OutOrStdout())
	},
}

func runOnce(ctx context.Context, cfg config.Config, out io.Writer) error {
	runID := pipeline.NewRunID()

	prod, err := producer.New(ctx, producer.Config{
		Storage: cfg.Storage,
		RunID:   runID,
		Out:     out,
	})
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	stats, err := pipeline.New(client, prod, pipeline.OptionsFromConfig(cfg, runID)).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, stats.Describe())
	return nil
}

// runScheduled blocks until ctx is done. A failed run is logged and the
// schedule keeps going; a tick that arrives while a run is still going is
// skipped.
func runScheduled(ctx context.Context, cfg config.Config, spec string, out io.Writer) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(spec, func() {
		if err := runOnce(ctx, cfg, out); err != nil {
			slog.ErrorContext(ctx, "scheduled run failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	slog.InfoContext(ctx, "scheduler started", "schedule", spec)

	<-ctx.Done()
	slog.InfoContext(ctx, "scheduler stopping, waiting for the current run")
	<-c.Stop().Done()

	return nil
}

// cronLogger routes cron's logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(fmt.Sprintf("cron: %s", msg), keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, "err", err)...)
}
