package stats

import (
	"context"
	"time"
)

// Fetcher retrieves the rendered page text for one configuration.
type Fetcher interface {
	Fetch(ctx context.Context, cfg StatConfiguration) (string, error)
}

// Extractor parses unstructured page text into candidate observations.
// Implementations hold their hero vocabulary so the positional-assignment
// policy can be swapped without touching the rest of the pipeline.
type Extractor interface {
	Extract(pageText string) []RawObservation
}

// Normalizer maps a raw observation onto the canonical record schema.
type Normalizer interface {
	Normalize(obs RawObservation, cfg StatConfiguration, observedAt time.Time) (HeroStatRecord, error)
}

// Ingestor submits normalized records to the store collaborator.
type Ingestor interface {
	IngestBatch(ctx context.Context, records []HeroStatRecord) (IngestResult, error)
}

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Delayer blocks for the given duration, respecting the context. Injected so
// retry and rate-limit waits are deterministic in tests.
type Delayer interface {
	Delay(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces sweep IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// SnapshotStore persists raw failing page content for diagnostics.
type SnapshotStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes sweep completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
