package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helix-tools/etl-go/pipeline"
	"github.com/helix-tools/etl-go/transform"
)

var (
	previewID    string
	previewLimit int
	previewStats bool
)

func init() {
	previewCmd.Flags().StringVar(&previewID, "id", "", "Apprenticeship id, required for projects.")
	previewCmd.Flags().IntVar(&previewLimit, "limit", 20, "Rows to print, 0 for all.")
	previewCmd.Flags().BoolVar(&previewStats, "stats", true, "Also print per-column emptiness.")
	rootCmd.AddCommand(previewCmd)
}

var previewCmd = &cobra.Command{
	Use:       "preview <apprenticeships|programmes|projects> [--id <id>] [--limit <n>]",
	Short:     "Fetches and transforms one collection and prints it without uploading.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"apprenticeships", "programmes", "projects"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		var url string
		switch args[0] {
		case "apprenticeships":
			url = cfg.API.ApprenticeshipsURL
		case "programmes":
			url = cfg.API.ProgrammesURL
		case "projects":
			if previewID == "" {
				return fmt.Errorf("--id is required for projects")
			}
			url = pipeline.ProjectsURL(cfg.API.ProjectsURL, previewID)
		}

		client, err := newAPIClient(cfg)
		if err != nil {
			return err
		}

		opts := pipeline.OptionsFromConfig(cfg, "")
		token, err := client.Authenticate(ctx, cfg.API.LoginURL, opts.Credentials)
		if err != nil {
			return err
		}

		records, err := client.FetchAll(ctx, url, token, nil)
		if err != nil {
			return err
		}

		table := transform.Transform(records)
		out := cmd.OutOrStdout()

		renderTable(out, table, previewLimit)
		if previewStats {
			renderAnalysis(out, transform.Analyze(table))
		}
		return nil
	},
}
