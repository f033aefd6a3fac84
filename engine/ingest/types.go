package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/engine/feed"
)

// FeedSource fetches the upstream disaster listing.
type FeedSource interface {
	Fetch(ctx context.Context) ([]feed.Disaster, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RecordStore persists canonical records keyed by external identifier.
type RecordStore interface {
	Upsert(ctx context.Context, rec domain.Record) (domain.Record, error)
}

// VectorIndex stores embeddings for nearest-neighbor search.
type VectorIndex interface {
	Upsert(ctx context.Context, rec domain.Record) error
}

// Deps holds the external dependencies for the ingestion pipeline. All of
// them are injected; lifecycle belongs to the process entry point.
type Deps struct {
	Feed     FeedSource
	Embedder Embedder
	Records  RecordStore
	Vectors  VectorIndex
	Logger   *slog.Logger
}

// Options tunes the pipeline's fan-out and pacing.
type Options struct {
	// Workers bounds concurrent per-record processing. Embedding calls are
	// the dominant latency cost, so this is effectively the outbound
	// embedding concurrency cap.
	Workers int
	// EmbedRate and EmbedBurst feed the token bucket pacing embedding
	// calls against upstream rate limits.
	EmbedRate  float64
	EmbedBurst int
	// EmbedTimeout bounds a single embedding attempt.
	EmbedTimeout time.Duration
	// StoreTimeout bounds one record's store writes (vector index plus
	// record collection together).
	StoreTimeout time.Duration
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		Workers:      10,
		EmbedRate:    10,
		EmbedBurst:   10,
		EmbedTimeout: 15 * time.Second,
		StoreTimeout: 10 * time.Second,
	}
}

// Failure records one record's terminal failure within a batch.
type Failure struct {
	ExternalID string `json:"reliefwebId"`
	Reason     string `json:"reason"`
}

// Report is the outcome tally of one ingestion run. Succeeded means the
// record was stored; a record stored without an embedding still counts as a
// success.
type Report struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}
