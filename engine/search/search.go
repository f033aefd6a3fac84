// Package search answers free-text queries: embed the query, run k-NN over
// the vector index, return ranked records. It adds no re-ranking and no
// score floor; the closest k come back regardless of absolute similarity.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs k-NN lookup over stored embeddings.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) ([]domain.ScoredRecord, error)
}

// Options configures the search service.
type Options struct {
	// DefaultK is used when the caller passes k <= 0.
	DefaultK int
	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration
	// SearchTimeout bounds the index lookup.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DefaultK:      5,
		EmbedTimeout:  10 * time.Second,
		SearchTimeout: 5 * time.Second,
	}
}

// Service orchestrates query-time semantic search.
type Service struct {
	embed  Embedder
	index  Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a search Service.
func New(embed Embedder, index Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultOptions().DefaultK
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultOptions().EmbedTimeout
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{embed: embed, index: index, opts: opts, logger: logger}
}

// Search returns up to k records ranked by descending similarity to the
// query. The query is validated before any backend call; an embedding
// failure here is fatal to the request, unlike during ingestion.
func (s *Service) Search(ctx context.Context, query string, k int) ([]domain.ScoredRecord, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.opts.DefaultK
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	vec, err := s.embed.Embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	hits, err := s.index.Search(searchCtx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchBackendError, err)
	}

	s.logger.Info("search: query served", "k", k, "results", len(hits))
	return hits, nil
}
