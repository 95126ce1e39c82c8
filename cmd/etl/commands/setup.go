package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/helix-tools/etl-go/api"
	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/transform"
)

// loadConfig reads the config and resolves SSM parameters. It does not
// validate; each command checks what it needs.
func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.SSM.NeedsParameters() {
		// SSM is read with the ambient AWS identity, since the static
		// storage secret may itself come from SSM.
		awsCfg, err := config.NewAWSConfig(ctx, config.StorageConfig{Region: cfg.Storage.Region})
		if err != nil {
			return config.Config{}, err
		}
		if err := config.ResolveParameters(ctx, &cfg, ssm.NewFromConfig(awsCfg)); err != nil {
			return config.Config{}, err
		}
	}

	return cfg, nil
}

func newAPIClient(cfg config.Config) (*api.Client, error) {
	timeout, err := cfg.API.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	return api.NewClient(api.ClientOptions{
		Timeout:            timeout,
		MaxPages:           cfg.API.MaxPages,
		DetectCursorCycles: cfg.API.DetectCursorCycles,
	}), nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// renderTable prints at most limit rows of t. A limit of zero prints every
// row.
func renderTable(w io.Writer, t *transform.Table, limit int) {
	out := newTable(w)

	header := table.Row{}
	for _, c := range t.Columns {
		header = append(header, c)
	}
	out.AppendHeader(header)

	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		out.AppendRow(row)
	}

	if len(rows) < t.Len() {
		out.AppendFooter(table.Row{fmt.Sprintf("%d of %d rows", len(rows), t.Len())})
	}
	out.Render()
}

func renderAnalysis(w io.Writer, a transform.Analysis) {
	out := newTable(w)
	out.SetTitle("%d rows, %d complete columns, %d empty columns", a.RowCount, a.Complete(), a.Empty())
	out.AppendHeader(table.Row{"Column", "Empty %"})
	for _, c := range a.Columns {
		out.AppendRow(table.Row{c.Name, fmt.Sprintf("%.2f", c.EmptyPercent)})
	}
	out.Render()
}
