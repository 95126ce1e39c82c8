// Package consumer reads back what the job produced: CSV objects from S3 and
// upload notifications from SQS.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/helix-tools/etl-go/config"
	"github.com/helix-tools/etl-go/transform"
	"github.com/helix-tools/etl-go/types"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectGetter is the subset of the S3 client used for downloads.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MessageReceiver is the subset of the SQS client used to read notifications.
type MessageReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Consumer struct {
	Bucket    string
	KeyPrefix string
	QueueURL  string

	s3Client  ObjectGetter
	sqsClient MessageReceiver
}

type Config struct {
	Storage config.StorageConfig
}

// Notification is one upload event read from the notify queue.
type Notification struct {
	types.UploadEvent

	MessageID     string `json:"message_id"`
	ReceiptHandle string `json:"receipt_handle"`
	RawMessage    string `json:"raw_message"`
}

// PollNotificationsOptions contains options for polling notifications from SQS.
type PollNotificationsOptions struct {
	MaxMessages     int32 // Maximum number of messages to retrieve (1-10, default: 10)
	WaitTimeSeconds int32 // Long polling wait time (0-20 seconds, default: 20)
	AutoAcknowledge *bool // Delete messages after receiving (default: true)
	RunIDs          []string
}

func New(ctx context.Context, cfg Config) (*Consumer, error) {
	awsCfg, err := config.NewAWSConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var sqsClient MessageReceiver
	if cfg.Storage.NotifyQueueURL != "" {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	return NewWithClients(cfg, s3.NewFromConfig(awsCfg, cfg.Storage.S3Options), sqsClient), nil
}

// NewWithClients creates a Consumer on top of existing clients. sqsClient may
// be nil when notifications are not read.
func NewWithClients(cfg Config, s3Client ObjectGetter, sqsClient MessageReceiver) *Consumer {
	return &Consumer{
		Bucket:    cfg.Storage.Bucket,
		KeyPrefix: cfg.Storage.KeyPrefix,
		QueueURL:  cfg.Storage.NotifyQueueURL,
		s3Client:  s3Client,
		sqsClient: sqsClient,
	}
}

// Download returns the raw bytes of key. The key prefix is applied.
func (c *Consumer) Download(ctx context.Context, key string) ([]byte, error) {
	key = c.KeyPrefix + key

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", c.Bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", c.Bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", c.Bucket, key, err)
	}

	slog.DebugContext(ctx, "downloaded object", "bucket", c.Bucket, "key", key, "bytes", len(data))
	return data, nil
}

// DownloadTable downloads key and parses it as CSV.
func (c *Consumer) DownloadTable(ctx context.Context, key string) (*transform.Table, error) {
	data, err := c.Download(ctx, key)
	if err != nil {
		return nil, err
	}

	table, err := transform.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return table, nil
}

// PollNotifications long-polls the notify queue for upload events.
//
// Messages are acknowledged (deleted) after retrieval unless
// opts.AutoAcknowledge is false. Messages that cannot be parsed are skipped
// and left on the queue.
func (c *Consumer) PollNotifications(ctx context.Context, opts PollNotificationsOptions) ([]Notification, error) {
	if c.sqsClient == nil || c.QueueURL == "" {
		return nil, fmt.Errorf("no notify queue configured")
	}

	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10 // AWS limit
	}
	if opts.WaitTimeSeconds <= 0 || opts.WaitTimeSeconds > 20 {
		opts.WaitTimeSeconds = 20 // AWS limit
	}
	autoAcknowledge := true
	if opts.AutoAcknowledge != nil {
		autoAcknowledge = *opts.AutoAcknowledge
	}

	receiveOutput, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.QueueURL),
		MaxNumberOfMessages:   opts.MaxMessages,
		WaitTimeSeconds:       opts.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to poll SQS queue: %w", err)
	}

	var notifications []Notification

	for _, message := range receiveOutput.Messages {
		body := aws.ToString(message.Body)

		event, err := parseEvent(body)
		if err != nil {
			slog.WarnContext(ctx, "skipping unparseable notification", "message_id", aws.ToString(message.MessageId), "err", err)
			continue
		}
		if event.EventType != types.EventObjectUploaded {
			continue
		}
		if len(opts.RunIDs) > 0 && !slices.Contains(opts.RunIDs, event.RunID) {
			continue
		}

		notification := Notification{
			UploadEvent:   event,
			MessageID:     aws.ToString(message.MessageId),
			ReceiptHandle: aws.ToString(message.ReceiptHandle),
			RawMessage:    body,
		}
		notifications = append(notifications, notification)

		if autoAcknowledge {
			if err := c.DeleteNotification(ctx, notification.ReceiptHandle); err != nil {
				slog.WarnContext(ctx, "failed to acknowledge notification", "message_id", notification.MessageID, "err", err)
			}
		}
	}

	return notifications, nil
}

// DeleteNotification deletes a notification message from the queue.
func (c *Consumer) DeleteNotification(ctx context.Context, receiptHandle string) error {
	if c.sqsClient == nil || c.QueueURL == "" {
		return fmt.Errorf("no notify queue configured")
	}

	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	return nil
}

// parseEvent decodes an upload event, unwrapping an SNS envelope when the
// queue is fed through a topic.
func parseEvent(body string) (types.UploadEvent, error) {
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return types.UploadEvent{}, err
	}
	if envelope.Type == "Notification" && envelope.Message != "" {
		body = envelope.Message
	}

	var event types.UploadEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return types.UploadEvent{}, err
	}
	return event, nil
}
