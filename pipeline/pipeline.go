// Package pipeline drives a full run: authenticate, then fetch, transform and
// upload apprenticeships, each apprenticeship's projects, and programmes.
package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/producer"
	"github.com/helix-tools/etl-go/transform"
	"github.com/helix-tools/etl-go/types"
)

var tracer = otel.Tracer("github.com/helix-tools/etl-go/pipeline")

// Source is the API side of a run.
type Source interface {
	Authenticate(ctx context.Context, loginURL string, creds types.Credentials) (types.Token, error)
	FetchAll(ctx context.Context, rawURL string, token types.Token, params url.Values) ([]types.Record, error)
}

// Sink is the storage side of a run.
type Sink interface {
	UploadTable(ctx context.Context, table *transform.Table, target types.UploadTarget) error
}

// Endpoints are the API URLs of a run. ProjectsURL contains
// config.IDPlaceholder.
type Endpoints struct {
	LoginURL           string
	ApprenticeshipsURL string
	ProjectsURL        string
	ProgrammesURL      string
}

// Options configures a Pipeline.
type Options struct {
	Endpoints   Endpoints
	Credentials types.Credentials
	Bucket      string

	// AbortOnMissingCredentials makes a missing-credentials upload failure
	// end the run. By default the upload is skipped and the run continues.
	AbortOnMissingCredentials bool

	// RunID identifies the run in logs. NewRunID is used when empty.
	RunID string

	Logger *slog.Logger
}

// OptionsFromConfig maps the job configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config, runID string) Options {
	return Options{
		Endpoints: Endpoints{
			LoginURL:           cfg.API.LoginURL,
			ApprenticeshipsURL: cfg.API.ApprenticeshipsURL,
			ProjectsURL:        cfg.API.ProjectsURL,
			ProgrammesURL:      cfg.API.ProgrammesURL,
		},
		Credentials: types.Credentials{
			Username: cfg.API.Username,
			Password: cfg.API.Password,
		},
		Bucket:                    cfg.Storage.Bucket,
		AbortOnMissingCredentials: cfg.AbortOnMissingCredentials,
		RunID:                     runID,
	}
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

type Pipeline struct {
	source Source
	sink   Sink
	opts   Options
	log    *slog.Logger
}

// New creates a Pipeline.
func New(source Source, sink Sink, opts Options) *Pipeline {
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		source: source,
		sink:   sink,
		opts:   opts,
		log:    logger.With("run_id", opts.RunID),
	}
}

// RunID returns the id of this pipeline's runs.
func (p *Pipeline) RunID() string {
	return p.opts.RunID
}

// collection is one fetch, transform and upload step.
type collection struct {
	name string
	url  string
	key  string
}

// Run executes one full run. Stages run strictly in order and the first
// error ends the run; objects uploaded before it stay in place. The one
// exception is a missing-credentials upload failure, which is skipped unless
// Options.AbortOnMissingCredentials is set.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{RunID: p.opts.RunID}

	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(attribute.String("etl.run_id", p.opts.RunID)))
	defer span.End()

	err := p.run(ctx, stats)
	stats.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.ErrorContext(ctx, "run failed", "stage", FailedStage(err), "err", err, "stats", stats)
		return stats, err
	}

	p.log.InfoContext(ctx, "run finished", "stats", stats)
	return stats, nil
}

func (p *Pipeline) run(ctx context.Context, stats *Stats) error {
	e := p.opts.Endpoints

	p.log.InfoContext(ctx, "authenticating", "url", e.LoginURL, "username", p.opts.Credentials.Username)
	token, err := p.source.Authenticate(ctx, e.LoginURL, p.opts.Credentials)
	if err != nil {
		return &StageError{Stage: StageAuthenticate, Err: err}
	}

	apprenticeships, err := p.runCollection(ctx, stats, token, collection{
		name: "apprenticeships",
		url:  e.ApprenticeshipsURL,
		key:  "apprenticeships.csv",
	})
	if err != nil {
		return err
	}

	for _, apprenticeship := range apprenticeships {
		id, err := recordID(apprenticeship)
		if err != nil {
			return &StageError{Stage: StageResolve, Collection: "projects", Err: err}
		}

		name := "projects_" + id
		if _, err := p.runCollection(ctx, stats, token, collection{
			name: name,
			url:  ProjectsURL(e.ProjectsURL, id),
			key:  name + ".csv",
		}); err != nil {
			return err
		}
	}

	if _, err := p.runCollection(ctx, stats, token, collection{
		name: "programmes",
		url:  e.ProgrammesURL,
		key:  "programmes.csv",
	}); err != nil {
		return err
	}

	return nil
}

// runCollection fetches, transforms and uploads one collection. It returns
// the fetched records.
func (p *Pipeline) runCollection(ctx context.Context, stats *Stats, token types.Token, c collection) ([]types.Record, error) {
	records, err := p.source.FetchAll(ctx, c.url, token, nil)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Collection: c.name, Err: err}
	}
	stats.Records += len(records)

	table := transform.Transform(records)
	p.log.DebugContext(ctx, "transformed collection",
		"collection", c.name,
		"records", len(records),
		"columns", len(table.Columns),
	)

	target := types.UploadTarget{Bucket: p.opts.Bucket, Key: c.key}
	if err := p.sink.UploadTable(ctx, table, target); err != nil {
		if producer.IsMissingCredentialsError(err) && !p.opts.AbortOnMissingCredentials {
			p.log.WarnContext(ctx, "upload skipped, storage credentials not available", "key", c.key, "err", err)
			stats.Skipped = append(stats.Skipped, c.key)
			return records, nil
		}
		return nil, &StageError{Stage: StageUpload, Collection: c.name, Err: err}
	}

	stats.Uploaded = append(stats.Uploaded, c.key)
	return records, nil
}

// recordID renders the id field of a record: strings unquoted, numbers as
// written. A missing, null or empty id is an error.
func recordID(r types.Record) (string, error) {
	id, ok := r.Value("id")
	if !ok || id == "" {
		return "", errMissingID
	}
	return id, nil
}

// ProjectsURL substitutes the path-escaped id into template.
func ProjectsURL(template, id string) string {
	return strings.ReplaceAll(template, config.IDPlaceholder, url.PathEscape(id))
}
