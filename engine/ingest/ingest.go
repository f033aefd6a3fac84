// Package ingest orchestrates one ingestion run: fetch the upstream feed,
// then fan out per-record normalize → embed (best-effort) → upsert work with
// full isolation between records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/engine/feed"
	"github.com/crisiswatch/crisiswatch/pkg/fn"
	"github.com/crisiswatch/crisiswatch/pkg/resilience"
)

// Pipeline runs ingestion batches. One logical run at a time; records within
// a run are processed concurrently.
type Pipeline struct {
	deps    Deps
	opts    Options
	limiter *resilience.Limiter
	log     *slog.Logger
}

// NewPipeline constructs a pipeline from its dependencies.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.EmbedRate <= 0 {
		opts.EmbedRate = DefaultOptions().EmbedRate
	}
	if opts.EmbedBurst <= 0 {
		opts.EmbedBurst = DefaultOptions().EmbedBurst
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultOptions().EmbedTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultOptions().StoreTimeout
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: opts.EmbedRate, Burst: opts.EmbedBurst}),
		log:     log,
	}
}

// Run executes one batch. A feed fetch failure aborts the run; every other
// failure is isolated to its record and tallied in the report. Run returns
// only after every record's outcome is resolved.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	disasters, err := p.deps.Feed.Fetch(ctx)
	if err != nil {
		return Report{}, err
	}
	p.log.Info("ingest: fetched feed", "records", len(disasters))

	stage := fn.Then(
		fn.Then(
			fn.TracedStage("ingest.normalize", p.normalizeStage()),
			fn.TracedStage("ingest.embed", p.embedStage()),
		),
		fn.TracedStage("ingest.store", p.storeStage()),
	)

	results := fn.ParMapResult(disasters, p.opts.Workers, func(d feed.Disaster) fn.Result[string] {
		return stage(ctx, d)
	})

	report := Report{Attempted: len(disasters), Duration: time.Since(start)}
	for i, r := range results {
		if r.IsOk() {
			report.Succeeded++
			continue
		}
		report.Failed++
		_, rerr := r.Unwrap()
		report.Failures = append(report.Failures, Failure{
			ExternalID: disasters[i].ID,
			Reason:     rerr.Error(),
		})
		p.log.Error("ingest: record failed", "reliefweb_id", disasters[i].ID, "error", rerr)
	}

	p.log.Info("ingest: run complete",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

// normalizeStage maps the upstream shape into a validated record.
func (p *Pipeline) normalizeStage() fn.Stage[feed.Disaster, domain.Record] {
	return func(_ context.Context, d feed.Disaster) fn.Result[domain.Record] {
		rec, err := Normalize(d)
		if err != nil {
			return fn.Err[domain.Record](err)
		}
		if err := domain.ValidateRecord(rec); err != nil {
			return fn.Err[domain.Record](err)
		}
		return fn.Ok(rec)
	}
}

// embedStage attaches a vector, best-effort: one attempt per record, paced
// by the token bucket. On failure the record continues without a vector.
func (p *Pipeline) embedStage() fn.Stage[domain.Record, domain.Record] {
	return func(ctx context.Context, rec domain.Record) fn.Result[domain.Record] {
		embedCtx, cancel := context.WithTimeout(ctx, p.opts.EmbedTimeout)
		defer cancel()

		err := p.limiter.CallWait(embedCtx, func(ctx context.Context) error {
			vec, err := p.deps.Embedder.Embed(ctx, rec.EmbeddingText())
			if err != nil {
				return err
			}
			rec.Embedding = vec
			return nil
		})
		if err != nil {
			p.log.Warn("ingest: embedding unavailable, storing without vector",
				"reliefweb_id", rec.ExternalID, "error", err)
			rec.Embedding = nil
		}
		return fn.Ok(rec)
	}
}

// storeStage upserts the record and, when a vector is present, its point in
// the search index. The index write goes first: committing an embedding to
// the record collection without its index point would leave the record
// unsearchable yet invisible to the backfill scan. Both writes share one
// bounded deadline.
func (p *Pipeline) storeStage() fn.Stage[domain.Record, string] {
	return func(ctx context.Context, rec domain.Record) fn.Result[string] {
		storeCtx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
		defer cancel()

		if rec.HasEmbedding() {
			if err := p.deps.Vectors.Upsert(storeCtx, rec); err != nil {
				return fn.Err[string](fmt.Errorf("%w: index %s: %v", domain.ErrStoreWriteFailed, rec.ExternalID, err))
			}
		}
		stored, err := p.deps.Records.Upsert(storeCtx, rec)
		if err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(stored.ExternalID)
	}
}
