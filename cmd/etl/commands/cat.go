package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helix-tools/etl-go/consumer"
)

var (
	catLimit int
	catRaw   bool
)

func init() {
	catCmd.Flags().IntVar(&catLimit, "limit", 0, "Rows to print, 0 for all.")
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "Print the object bytes instead of a table.")
	rootCmd.AddCommand(catCmd)
}

var catCmd = &cobra.Command{
	Use:   "cat <key> [--raw] [--limit <n>]",
	Short: "Downloads an uploaded CSV object and prints it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required")
		}

		c, err := consumer.New(ctx, consumer.Config{Storage: cfg.Storage})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if catRaw {
			data, err := c.Download(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		}

		table, err := c.DownloadTable(ctx, args[0])
		if err != nil {
			return err
		}
		renderTable(out, table, catLimit)
		return nil
	},
}
