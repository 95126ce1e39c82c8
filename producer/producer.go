// Package producer uploads transformed tables to S3 as CSV objects.
package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/transform"
	"github.com/helix-tools/etl-go/types"
)

// ContentType is set on every uploaded object.
const ContentType = "text/csv; charset=utf-8"

var tracer = otel.Tracer("github.com/helix-tools/etl-go/producer")

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MessageSender is the subset of the SQS client used for notifications.
type MessageSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// IdentityGetter is the subset of the STS client used to verify credentials.
type IdentityGetter interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Config contains configuration for the Producer.
type Config struct {
	Storage config.StorageConfig

	// RunID is attached to upload notifications.
	RunID string

	// Out receives the per-upload notice lines. Defaults to os.Stdout.
	Out io.Writer
}

// Clients are the AWS clients a Producer talks to. SQS and Credentials may
// be nil; a nil Credentials skips the credential check before uploads.
type Clients struct {
	S3          ObjectPutter
	SQS         MessageSender
	STS         IdentityGetter
	Credentials aws.CredentialsProvider
}

// Producer uploads tables to S3.
type Producer struct {
	Bucket         string
	KeyPrefix      string
	KMSKeyID       string
	NotifyQueueURL string
	RunID          string

	out         io.Writer
	s3Client    ObjectPutter
	sqsClient   MessageSender
	stsClient   IdentityGetter
	credentials aws.CredentialsProvider
}

// New creates a Producer backed by the AWS SDK. When
// cfg.Storage.VerifyCredentials is set the credentials are checked with STS
// before returning.
func New(ctx context.Context, cfg Config) (*Producer, error) {
	awsCfg, err := config.NewAWSConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	clients := Clients{
		S3:          s3.NewFromConfig(awsCfg, cfg.Storage.S3Options),
		STS:         sts.NewFromConfig(awsCfg),
		Credentials: awsCfg.Credentials,
	}
	if cfg.Storage.NotifyQueueURL != "" {
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}

	p := NewWithClients(cfg, clients)

	if cfg.Storage.VerifyCredentials {
		if err := p.VerifyCredentials(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// NewWithClients creates a Producer on top of existing clients.
func NewWithClients(cfg Config, clients Clients) *Producer {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	return &Producer{
		Bucket:         cfg.Storage.Bucket,
		KeyPrefix:      cfg.Storage.KeyPrefix,
		KMSKeyID:       cfg.Storage.KMSKeyID,
		NotifyQueueURL: cfg.Storage.NotifyQueueURL,
		RunID:          cfg.RunID,
		out:            out,
		s3Client:       clients.S3,
		sqsClient:      clients.SQS,
		stsClient:      clients.STS,
		credentials:    clients.Credentials,
	}
}

// Target addresses key in the producer's bucket.
func (p *Producer) Target(key string) types.UploadTarget {
	return types.UploadTarget{Bucket: p.Bucket, Key: key}
}

// VerifyCredentials checks the credentials with STS GetCallerIdentity.
func (p *Producer) VerifyCredentials(ctx context.Context) error {
	if err := p.checkCredentials(ctx, p.Target("")); err != nil {
		return err
	}
	if p.stsClient == nil {
		return nil
	}

	if _, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return fmt.Errorf("invalid AWS credentials: %w", err)
	}

	return nil
}

// UploadTable serializes table as CSV and writes it to target, replacing any
// existing object. The key prefix, if any, is prepended to target.Key.
//
// When no credentials are available a *MissingCredentialsError is returned
// and nothing is written.
func (p *Producer) UploadTable(ctx context.Context, table *transform.Table, target types.UploadTarget) error {
	target.Key = p.KeyPrefix + target.Key

	ctx, span := tracer.Start(ctx, "producer.UploadTable", trace.WithAttributes(
		attribute.String("s3.bucket", target.Bucket),
		attribute.String("s3.key", target.Key),
		attribute.Int("etl.rows", table.Len()),
	))
	defer span.End()

	body, err := table.CSV()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to serialize %s: %w", target.Key, err)
	}

	if err := p.checkCredentials(ctx, target); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(target.Bucket),
		Key:           aws.String(target.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ContentType),
	}
	if p.KMSKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(p.KMSKeyID)
	}

	if _, err := p.s3Client.PutObject(ctx, input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if isMissingCredentials(err) {
			fmt.Fprintln(p.out, "❌ Credentials not available")
			return &MissingCredentialsError{Target: target, Err: err}
		}
		return fmt.Errorf("failed to upload %s: %w", target, err)
	}

	fmt.Fprintf(p.out, "✅ Successfully uploaded %s to %s\n", target.Key, target.Bucket)

	p.notify(ctx, target, int64(len(body)), table.Len())
	return nil
}

// checkCredentials resolves credentials before any bytes are sent.
func (p *Producer) checkCredentials(ctx context.Context, target types.UploadTarget) error {
	if p.credentials == nil {
		return nil
	}

	if _, err := p.credentials.Retrieve(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		fmt.Fprintln(p.out, "❌ Credentials not available")
		return &MissingCredentialsError{Target: target, Err: err}
	}

	return nil
}
