// Command ingest polls the ReliefWeb disaster listing on an interval, runs
// each entry through the ingestion pipeline into MongoDB and Qdrant, and
// publishes run reports over NATS. A NATS trigger subject allows on-demand
// runs between ticks.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/feed"
	"github.com/crisiswatch/crisiswatch/engine/ingest"
	"github.com/crisiswatch/crisiswatch/engine/records"
	"github.com/crisiswatch/crisiswatch/engine/semantic"
	"github.com/crisiswatch/crisiswatch/pkg/metrics"
	"github.com/crisiswatch/crisiswatch/pkg/natsutil"
	"github.com/crisiswatch/crisiswatch/pkg/resilience"
	"github.com/crisiswatch/crisiswatch/pkg/vertex"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	triggerSubject = "crisiswatch.ingest.trigger"
	reportSubject  = "crisiswatch.ingest.report"
)

var met = metrics.New()

var (
	mRunsTotal      = met.Counter("crisiswatch_ingest_runs_total", "Total ingestion runs")
	mRecordsOK      = met.Counter("crisiswatch_ingest_records_succeeded_total", "Records stored")
	mRecordsFailed  = met.Counter("crisiswatch_ingest_records_failed_total", "Records that failed terminally")
	mRunErrors      = met.Counter("crisiswatch_ingest_run_errors_total", "Runs aborted before any record was processed")
	mLastRun        = met.Gauge("crisiswatch_ingest_last_run_timestamp", "Epoch of last completed run")
	mRunDur         = met.Histogram("crisiswatch_ingest_run_duration_seconds", "Full run time", nil)
	mReportsDropped = met.Counter("crisiswatch_ingest_reports_dropped_total", "Run reports that failed to publish")
)

func main() {
	var (
		appName    = flag.String("appname", "crisiswatch", "ReliefWeb appname parameter")
		mongoURI   = flag.String("mongo", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
		mongoDB    = flag.String("mongo-db", envOr("MONGO_DB", "crisiswatch"), "MongoDB database name")
		mongoColl  = flag.String("mongo-collection", envOr("MONGO_COLLECTION", "alerts"), "MongoDB collection name")
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection = flag.String("collection", envOr("QDRANT_COLLECTION", "alerts"), "Qdrant collection name")
		dims       = flag.Int("dims", 768, "embedding vector dimensionality")
		project    = flag.String("project", os.Getenv("VERTEX_PROJECT"), "GCP project for Vertex AI")
		region     = flag.String("region", envOr("VERTEX_REGION", "us-central1"), "Vertex AI region")
		model      = flag.String("model", envOr("VERTEX_MODEL", "textembedding-gecko@001"), "Vertex AI embedding model")
		natsURL    = flag.String("nats", os.Getenv("NATS_URL"), "NATS server URL (empty disables messaging)")
		interval   = flag.Duration("interval", 15*time.Minute, "poll interval")
		metricPort = flag.Int("metrics-port", 9091, "Prometheus metrics port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(*metricPort)

	if *project == "" {
		log.Error("VERTEX_PROJECT (or -project) is required")
		os.Exit(1)
	}

	// Connect MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Error("mongo connect failed", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())

	recordStore := records.NewStore(mongoClient.Database(*mongoDB).Collection(*mongoColl))
	if err := recordStore.EnsureIndexes(ctx); err != nil {
		log.Error("mongo ensure indexes failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to MongoDB", "db", *mongoDB, "collection", *mongoColl)

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection, *dims)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *dims)

	// Vertex AI embedder behind a circuit breaker so a dead embedding
	// endpoint fails fast instead of stalling every record in the batch.
	embedClient := vertex.NewEmbedClient(vertex.Config{
		ProjectID: *project,
		Region:    *region,
		ModelName: *model,
	}, vertex.StaticToken(os.Getenv("VERTEX_TOKEN")))
	embedder := &guardedEmbedder{
		inner:   embedClient,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts()),
	}
	log.Info("using Vertex AI embeddings", "model", *model, "region", *region)

	pipeline := ingest.NewPipeline(ingest.Deps{
		Feed:     feed.NewClient(*appName),
		Embedder: embedder,
		Records:  recordStore,
		Vectors:  vs,
		Logger:   log,
	}, ingest.DefaultOptions())

	// Optional NATS wiring: on-demand trigger plus run reports.
	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL, nats.Name("crisiswatch-ingest"))
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		log.Info("connected to NATS", "url", *natsURL)
	}

	// runOnce serializes runs; an on-demand trigger arriving mid-run waits.
	var runMu sync.Mutex
	runOnce := func(ctx context.Context, cause string) {
		runMu.Lock()
		defer runMu.Unlock()

		start := time.Now()
		report, err := pipeline.Run(ctx)
		mRunsTotal.Inc()
		mRunDur.Since(start)
		mLastRun.Set(time.Now().Unix())
		if err != nil {
			mRunErrors.Inc()
			log.Error("ingestion run failed", "cause", cause, "error", err)
			return
		}

		mRecordsOK.Add(int64(report.Succeeded))
		mRecordsFailed.Add(int64(report.Failed))
		log.Info("ingestion run complete",
			"cause", cause,
			"attempted", report.Attempted,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
		)

		if nc != nil {
			if err := natsutil.Publish(ctx, nc, reportSubject, report); err != nil {
				mReportsDropped.Inc()
				log.Warn("report publish failed", "error", err)
			}
		}
	}

	if nc != nil {
		type trigger struct{}
		sub, err := natsutil.Subscribe(nc, triggerSubject, func(ctx context.Context, _ trigger) {
			runOnce(ctx, "trigger")
		})
		if err != nil {
			log.Error("trigger subscribe failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
	}

	log.Info("polling upstream feed", "interval", *interval)
	runOnce(ctx, "startup")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, "interval")
		}
	}
}

// guardedEmbedder routes embedding calls through a circuit breaker.
type guardedEmbedder struct {
	inner   ingest.Embedder
	breaker *resilience.Breaker
}

func (g *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		vec, err = g.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
