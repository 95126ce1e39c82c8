package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/producer/s3test"
	"github.com/helix-tools/etl-go/transform"
	"github.com/helix-tools/etl-go/types"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

type fakeSTS struct {
	err   error
	calls int
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012")}, nil
}

func validCredentials() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
}

func sampleTable() *transform.Table {
	return transform.Transform([]types.Record{
		types.RecordOf("id", 1, "Learner Name", "Ada"),
		types.RecordOf("id", 2, "Learner Name", "Grace", "Coach", "Linus"),
	})
}

// TestUploadTableWritesCSV tests the object written for a table.
func TestUploadTableWritesCSV(t *testing.T) {
	s3c := &fakeS3{}
	var out bytes.Buffer
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: &out}, Clients{
		S3:          s3c,
		Credentials: validCredentials(),
	})

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if len(s3c.inputs) != 1 {
		t.Fatalf("expected 1 put, got %d", len(s3c.inputs))
	}
	in := s3c.inputs[0]
	if aws.ToString(in.Bucket) != "raw" || aws.ToString(in.Key) != "apprenticeships.csv" {
		t.Errorf("unexpected target s3://%s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != ContentType {
		t.Errorf("unexpected content type %q", aws.ToString(in.ContentType))
	}
	if in.ServerSideEncryption != "" {
		t.Errorf("expected no server side encryption, got %q", in.ServerSideEncryption)
	}

	expected := "id,learner_name,coach\n1,Ada,\n2,Grace,Linus\n"
	if s3c.bodies[0] != expected {
		t.Errorf("unexpected body:\n%s\nexpected:\n%s", s3c.bodies[0], expected)
	}
	if aws.ToInt64(in.ContentLength) != int64(len(expected)) {
		t.Errorf("unexpected content length %d", aws.ToInt64(in.ContentLength))
	}

	if out.String() != "✅ Successfully uploaded apprenticeships.csv to raw\n" {
		t.Errorf("unexpected notice %q", out.String())
	}
}

// TestUploadTableEmptyTable tests that an empty table is still uploaded.
func TestUploadTableEmptyTable(t *testing.T) {
	s3c := &fakeS3{}
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: io.Discard}, Clients{S3: s3c})

	if err := p.UploadTable(context.Background(), transform.Transform(nil), p.Target("programmes.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(s3c.bodies) != 1 || s3c.bodies[0] != "\n" {
		t.Errorf("unexpected bodies %q", s3c.bodies)
	}
}

// TestUploadTableKeyPrefixAndKMS tests optional key prefix and SSE-KMS.
func TestUploadTableKeyPrefixAndKMS(t *testing.T) {
	s3c := &fakeS3{}
	var out bytes.Buffer
	p := NewWithClients(Config{
		Storage: config.StorageConfig{
			Bucket:    "raw",
			KeyPrefix: "etl/daily/",
			KMSKeyID:  "arn:aws:kms:us-east-1:123456789012:key/abc",
		},
		Out: &out,
	}, Clients{S3: s3c})

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("programmes.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	in := s3c.inputs[0]
	if aws.ToString(in.Key) != "etl/daily/programmes.csv" {
		t.Errorf("unexpected key %q", aws.ToString(in.Key))
	}
	if in.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Errorf("unexpected encryption %q", in.ServerSideEncryption)
	}
	if aws.ToString(in.SSEKMSKeyId) != "arn:aws:kms:us-east-1:123456789012:key/abc" {
		t.Errorf("unexpected kms key %q", aws.ToString(in.SSEKMSKeyId))
	}
	if !strings.Contains(out.String(), "etl/daily/programmes.csv to raw") {
		t.Errorf("notice should name the prefixed key: %q", out.String())
	}
}

// TestUploadTableMissingCredentials tests that nothing is written without credentials.
func TestUploadTableMissingCredentials(t *testing.T) {
	s3c := &fakeS3{}
	var out bytes.Buffer
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: &out}, Clients{
		S3:          s3c,
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "", ""),
	})

	err := p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv"))

	var credErr *MissingCredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if credErr.Target.Key != "apprenticeships.csv" {
		t.Errorf("unexpected target %v", credErr.Target)
	}
	if !IsMissingCredentialsError(err) {
		t.Error("IsMissingCredentialsError should match")
	}
	if len(s3c.inputs) != 0 {
		t.Errorf("expected no puts, got %d", len(s3c.inputs))
	}
	if out.String() != "❌ Credentials not available\n" {
		t.Errorf("unexpected notice %q", out.String())
	}
}

// TestUploadTableMissingCredentialsFromPut tests detection on the put error path.
func TestUploadTableMissingCredentialsFromPut(t *testing.T) {
	s3c := &fakeS3{err: &smithyWrapped{err: &credentials.StaticCredentialsEmptyError{}}}
	var out bytes.Buffer
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: &out}, Clients{S3: s3c})

	err := p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv"))
	if !IsMissingCredentialsError(err) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if !strings.Contains(out.String(), "❌ Credentials not available") {
		t.Errorf("unexpected notice %q", out.String())
	}
}

type smithyWrapped struct{ err error }

func (e *smithyWrapped) Error() string { return "operation error S3: PutObject, " + e.err.Error() }
func (e *smithyWrapped) Unwrap() error { return e.err }

// TestUploadTableFailure tests that other failures are returned wrapped.
func TestUploadTableFailure(t *testing.T) {
	s3c := &fakeS3{err: errors.New("AccessDenied")}
	var out bytes.Buffer
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: &out}, Clients{S3: s3c})

	err := p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv"))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsMissingCredentialsError(err) {
		t.Error("AccessDenied is not a missing credentials error")
	}
	if !strings.Contains(err.Error(), "s3://raw/apprenticeships.csv") || !strings.Contains(err.Error(), "AccessDenied") {
		t.Errorf("unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no notice, got %q", out.String())
	}
}

// TestUploadTableCanceledContext tests that cancellation is not reported as missing credentials.
func TestUploadTableCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: io.Discard}, Clients{
		S3:          &fakeS3{},
		Credentials: failingProvider{},
	})

	err := p.UploadTable(ctx, sampleTable(), p.Target("apprenticeships.csv"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingProvider struct{}

func (failingProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	return aws.Credentials{}, ctx.Err()
}

// TestUploadTableSendsNotification tests the queue message after an upload.
func TestUploadTableSendsNotification(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	defer func() { now = time.Now }()

	sqsc := &fakeSQS{}
	p := NewWithClients(Config{
		Storage: config.StorageConfig{Bucket: "raw", NotifyQueueURL: "https://sqs.us-east-1.amazonaws.com/123/etl"},
		RunID:   "run-1",
		Out:     io.Discard,
	}, Clients{S3: &fakeS3{}, SQS: sqsc})

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("projects_1.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if len(sqsc.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sqsc.inputs))
	}
	in := sqsc.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.us-east-1.amazonaws.com/123/etl" {
		t.Errorf("unexpected queue %q", aws.ToString(in.QueueUrl))
	}
	if attr := in.MessageAttributes["event_type"]; aws.ToString(attr.StringValue) != types.EventObjectUploaded {
		t.Errorf("unexpected event_type attribute %+v", attr)
	}

	var event types.UploadEvent
	if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &event); err != nil {
		t.Fatalf("invalid message body: %v", err)
	}
	expected := types.UploadEvent{
		EventType: types.EventObjectUploaded,
		RunID:     "run-1",
		Bucket:    "raw",
		Key:       "projects_1.csv",
		SizeBytes: int64(len("id,learner_name,coach\n1,Ada,\n2,Grace,Linus\n")),
		RowCount:  2,
		Timestamp: "2026-10-15T09:30:00Z",
	}
	if event != expected {
		t.Errorf("unexpected event %+v, expected %+v", event, expected)
	}
}

// TestUploadTableNotificationFailureIsIgnored tests that a queue failure does not fail the upload.
func TestUploadTableNotificationFailureIsIgnored(t *testing.T) {
	sqsc := &fakeSQS{err: errors.New("QueueDoesNotExist")}
	p := NewWithClients(Config{
		Storage: config.StorageConfig{Bucket: "raw", NotifyQueueURL: "https://sqs.example/q"},
		Out:     io.Discard,
	}, Clients{S3: &fakeS3{}, SQS: sqsc})

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("programmes.csv")); err != nil {
		t.Fatalf("upload should succeed, got %v", err)
	}
	if len(sqsc.inputs) != 1 {
		t.Errorf("expected 1 attempted message, got %d", len(sqsc.inputs))
	}
}

// TestUploadTableWithoutQueue tests that no message is sent when no queue is configured.
func TestUploadTableWithoutQueue(t *testing.T) {
	sqsc := &fakeSQS{}
	p := NewWithClients(Config{Storage: config.StorageConfig{Bucket: "raw"}, Out: io.Discard}, Clients{S3: &fakeS3{}, SQS: sqsc})

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("programmes.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(sqsc.inputs) != 0 {
		t.Errorf("expected no messages, got %d", len(sqsc.inputs))
	}
}

// TestVerifyCredentials tests the STS preflight.
func TestVerifyCredentials(t *testing.T) {
	stsc := &fakeSTS{}
	p := NewWithClients(Config{Out: io.Discard}, Clients{STS: stsc, Credentials: validCredentials()})
	if err := p.VerifyCredentials(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stsc.calls != 1 {
		t.Errorf("expected 1 call, got %d", stsc.calls)
	}

	stsc = &fakeSTS{err: errors.New("InvalidClientTokenId")}
	p = NewWithClients(Config{Out: io.Discard}, Clients{STS: stsc, Credentials: validCredentials()})
	err := p.VerifyCredentials(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid AWS credentials") {
		t.Errorf("unexpected error: %v", err)
	}

	stsc = &fakeSTS{}
	p = NewWithClients(Config{Out: io.Discard}, Clients{
		STS:         stsc,
		Credentials: credentials.NewStaticCredentialsProvider("", "", ""),
	})
	if err := p.VerifyCredentials(context.Background()); !IsMissingCredentialsError(err) {
		t.Errorf("expected MissingCredentialsError, got %v", err)
	}
	if stsc.calls != 0 {
		t.Errorf("STS should not be called without credentials")
	}
}

func sdkStorage(server *s3test.Server) config.StorageConfig {
	return config.StorageConfig{
		Bucket:          "raw",
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        server.URL,
		UsePathStyle:    true,
	}
}

// TestNewUploadsThroughSDK tests a real SDK client against a fake S3 endpoint.
func TestNewUploadsThroughSDK(t *testing.T) {
	server := s3test.NewServer()
	defer server.Close()

	var out bytes.Buffer
	p, err := New(context.Background(), Config{Storage: sdkStorage(server), Out: &out})
	if err != nil {
		t.Fatalf("failed to create producer: %v", err)
	}

	if err := p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	reqs := server.Requests()
	if len(reqs) != 1 || reqs[0].Method != http.MethodPut || reqs[0].Bucket != "raw" || reqs[0].Key != "apprenticeships.csv" {
		t.Fatalf("unexpected requests %+v", reqs)
	}

	obj, ok := server.Object("raw", "apprenticeships.csv")
	if !ok {
		t.Fatal("object not stored")
	}
	if obj.ContentType != ContentType {
		t.Errorf("unexpected content type %q", obj.ContentType)
	}
	if string(obj.Body) != "id,learner_name,coach\n1,Ada,\n2,Grace,Linus\n" {
		t.Errorf("unexpected body %q", obj.Body)
	}
	if !strings.Contains(out.String(), "✅ Successfully uploaded apprenticeships.csv to raw") {
		t.Errorf("unexpected notice %q", out.String())
	}
}

// TestNewMissingSecretThroughSDK tests that a half-configured key pair never reaches S3.
func TestNewMissingSecretThroughSDK(t *testing.T) {
	server := s3test.NewServer()
	defer server.Close()

	storage := sdkStorage(server)
	storage.SecretAccessKey = ""

	var out bytes.Buffer
	p, err := New(context.Background(), Config{Storage: storage, Out: &out})
	if err != nil {
		t.Fatalf("failed to create producer: %v", err)
	}

	err = p.UploadTable(context.Background(), sampleTable(), p.Target("apprenticeships.csv"))
	if !IsMissingCredentialsError(err) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if n := len(server.Requests()); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}
	if out.String() != "❌ Credentials not available\n" {
		t.Errorf("unexpected notice %q", out.String())
	}
}
