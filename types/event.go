package types

// EventObjectUploaded is the event type sent after a successful upload.
const EventObjectUploaded = "object.uploaded"

// UploadEvent is the queue message describing one uploaded object.
type UploadEvent struct {
	EventType string `json:"event_type"`
	RunID     string `json:"run_id"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	RowCount  int    `json:"row_count"`
	Timestamp string `json:"timestamp"` // RFC 3339, UTC
}
