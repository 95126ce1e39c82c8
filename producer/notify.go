package producer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/helix-tools/etl-go/types"
)

// now is replaced in tests.
var now = time.Now

// notify sends an upload event to the notify queue. Failures are logged and
// never fail the upload.
func (p *Producer) notify(ctx context.Context, target types.UploadTarget, size int64, rows int) {
	if p.sqsClient == nil || p.NotifyQueueURL == "" {
		return
	}

	event := types.UploadEvent{
		EventType: types.EventObjectUploaded,
		RunID:     p.RunID,
		Bucket:    target.Bucket,
		Key:       target.Key,
		SizeBytes: size,
		RowCount:  rows,
		Timestamp: now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(event)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode upload notification", "key", target.Key, "err", err)
		return
	}

	_, err = p.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.NotifyQueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
		},
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to send upload notification",
			"queue", p.NotifyQueueURL,
			"key", target.Key,
			"err", err,
		)
		return
	}

	slog.DebugContext(ctx, "sent upload notification", "key", target.Key, "run_id", p.RunID)
}
