// Command backfill embeds records that were stored without a vector. It
// queries MongoDB for records missing an embedding, generates one per record
// through Vertex AI, and writes it back to both MongoDB and Qdrant. Records
// that fail stay unembedded and are retried on the next invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/engine/records"
	"github.com/crisiswatch/crisiswatch/engine/semantic"
	"github.com/crisiswatch/crisiswatch/pkg/resilience"
	"github.com/crisiswatch/crisiswatch/pkg/vertex"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	var (
		mongoURI   = flag.String("mongo", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
		mongoDB    = flag.String("mongo-db", envOr("MONGO_DB", "crisiswatch"), "MongoDB database name")
		mongoColl  = flag.String("mongo-collection", envOr("MONGO_COLLECTION", "alerts"), "MongoDB collection name")
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection = flag.String("collection", envOr("QDRANT_COLLECTION", "alerts"), "Qdrant collection name")
		dims       = flag.Int("dims", 768, "embedding vector dimensionality")
		project    = flag.String("project", os.Getenv("VERTEX_PROJECT"), "GCP project for Vertex AI")
		region     = flag.String("region", envOr("VERTEX_REGION", "us-central1"), "Vertex AI region")
		model      = flag.String("model", envOr("VERTEX_MODEL", "textembedding-gecko@001"), "Vertex AI embedding model")
		batch      = flag.Int("batch", 500, "max records to backfill in one invocation")
		rate       = flag.Float64("rate", 5, "embedding calls per second")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *project == "" {
		log.Fatal("VERTEX_PROJECT (or -project) is required")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	store := records.NewStore(mongoClient.Database(*mongoDB).Collection(*mongoColl))

	vs, err := semantic.New(*qdrantAddr, *collection, *dims)
	if err != nil {
		log.Fatalf("qdrant connect: %v", err)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx); err != nil {
		log.Fatalf("qdrant ensure collection: %v", err)
	}

	embedder := vertex.NewEmbedClient(vertex.Config{
		ProjectID: *project,
		Region:    *region,
		ModelName: *model,
	}, vertex.StaticToken(os.Getenv("VERTEX_TOKEN")))

	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: *rate, Burst: 1})

	missing, err := store.FindMissingEmbedding(ctx, *batch)
	if err != nil {
		log.Fatalf("query unembedded records: %v", err)
	}
	log.Printf("Found %d records without embeddings", len(missing))

	var filled, errors int
	for i, rec := range missing {
		if ctx.Err() != nil {
			break
		}

		err := limiter.CallWait(ctx, func(ctx context.Context) error {
			embedCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()
			vec, err := embedder.Embed(embedCtx, rec.EmbeddingText())
			if err != nil {
				return err
			}
			rec.Embedding = vec
			return nil
		})
		if err != nil {
			log.Printf("[%d] embed error for %s: %v", i, rec.ExternalID, err)
			errors++
			continue
		}

		// Index first: a record marked embedded in Mongo but absent from
		// the index would never be selected for repair again.
		if err := writeBack(ctx, vs, store, rec); err != nil {
			log.Printf("[%d] write error for %s: %v", i, rec.ExternalID, err)
			errors++
			continue
		}

		filled++
		if filled%100 == 0 {
			log.Printf("Progress: %d filled, %d errors (of %d)", filled, errors, len(missing))
		}
	}

	log.Printf("Done! Filled: %d, Errors: %d, Total: %d", filled, errors, len(missing))

	remaining, err := store.FindMissingEmbedding(ctx, 1)
	if err == nil && len(remaining) == 0 {
		log.Printf("No unembedded records remain")
	}
}

// writeBack stores the freshly embedded record in both halves of the store
// under one bounded deadline, vector index first.
func writeBack(ctx context.Context, vs *semantic.VectorStore, store *records.Store, rec domain.Record) error {
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := vs.Upsert(writeCtx, rec); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if err := store.SetEmbedding(writeCtx, rec.ExternalID, rec.Embedding); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
