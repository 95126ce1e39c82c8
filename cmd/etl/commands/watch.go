package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helix-tools/etl-go/consumer"
)

var (
	watchRunIDs []string
	watchOnce   bool
	watchWait   int32
)

func init() {
	watchCmd.Flags().StringSliceVar(&watchRunIDs, "run-id", nil, "Only show uploads of these runs.")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Poll a single time and exit.")
	watchCmd.Flags().Int32Var(&watchWait, "wait", 20, "Long polling wait in seconds (max 20).")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--run-id <id>] [--once]",
	Short: "Prints upload notifications from the notify queue as they arrive.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.Storage.NotifyQueueURL == "" {
			return fmt.Errorf("storage.notify_queue_url is required")
		}

		c, err := consumer.New(ctx, consumer.Config{Storage: cfg.Storage})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for {
			notifications, err := c.PollNotifications(ctx, consumer.PollNotificationsOptions{
				WaitTimeSeconds: watchWait,
				RunIDs:          watchRunIDs,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			for _, n := range notifications {
				fmt.Fprintf(out, "📥 %s s3://%s/%s (%d rows, %d bytes, run %s)\n",
					n.Timestamp, n.Bucket, n.Key, n.RowCount, n.SizeBytes, n.RunID)
			}
			slog.DebugContext(ctx, "polled notify queue", "received", len(notifications))

			if watchOnce || ctx.Err() != nil {
				return nil
			}
		}
	},
}
