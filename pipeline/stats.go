package pipeline

import (
	"fmt"
	"log/slog"
	"time"
)

// Stats summarizes a run. A failed run returns the stats gathered up to the
// failure.
type Stats struct {
	RunID string

	// Uploaded lists the object keys written, in order.
	Uploaded []string

	// Skipped lists the keys not written for lack of storage credentials.
	Skipped []string

	// Records counts fetched records across all collections.
	Records int

	Duration time.Duration
}

// LogValue implements slog.LogValuer.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int("uploaded", len(s.Uploaded)),
		slog.Int("skipped", len(s.Skipped)),
		slog.Int("records", s.Records),
		slog.Duration("duration", s.Duration),
	)
}

// Describe returns a one-line summary of the run for humans.
func (s *Stats) Describe() string {
	return fmt.Sprintf("run %s: %d uploaded, %d skipped, %d records in %s",
		s.RunID, len(s.Uploaded), len(s.Skipped), s.Records, s.Duration.Round(time.Millisecond))
}
