// Package main implements the crisiswatch API server: recent alert listing
// and semantic search over ingested disaster records.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/engine/records"
	"github.com/crisiswatch/crisiswatch/engine/search"
	"github.com/crisiswatch/crisiswatch/engine/semantic"
	"github.com/crisiswatch/crisiswatch/pkg/mid"
	"github.com/crisiswatch/crisiswatch/pkg/vertex"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	MongoURI      string
	MongoDB       string
	Collection    string
	QdrantURL     string
	QdrantColl    string
	VectorDims    int
	VertexProject string
	VertexRegion  string
	VertexModel   string
	VertexToken   string
	CORSOrigin    string
	APIToken      string
}

func loadConfig() (Config, error) {
	dims, err := strconv.Atoi(envOr("VECTOR_DIMS", "768"))
	if err != nil || dims <= 0 {
		return Config{}, domain.NewConfigError("VECTOR_DIMS", "must be a positive integer")
	}
	cfg := Config{
		Port:          envOr("PORT", "8080"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       envOr("MONGO_DB", "crisiswatch"),
		Collection:    envOr("MONGO_COLLECTION", "alerts"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		QdrantColl:    envOr("QDRANT_COLLECTION", "alerts"),
		VectorDims:    dims,
		VertexProject: os.Getenv("VERTEX_PROJECT"),
		VertexRegion:  envOr("VERTEX_REGION", "us-central1"),
		VertexModel:   envOr("VERTEX_MODEL", "textembedding-gecko@001"),
		VertexToken:   os.Getenv("VERTEX_TOKEN"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		APIToken:      os.Getenv("API_TOKEN"),
	}
	if cfg.MongoURI == "" {
		return Config{}, domain.NewConfigError("MONGO_URI", "is required")
	}
	if cfg.VertexProject == "" {
		return Config{}, domain.NewConfigError("VERTEX_PROJECT", "is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MongoDB ---
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())

	recordStore := records.NewStore(mongoClient.Database(cfg.MongoDB).Collection(cfg.Collection))

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.QdrantColl, cfg.VectorDims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Vertex AI embedder ---
	embedder := vertex.NewEmbedClient(vertex.Config{
		ProjectID: cfg.VertexProject,
		Region:    cfg.VertexRegion,
		ModelName: cfg.VertexModel,
	}, vertex.StaticToken(cfg.VertexToken))

	// --- Build search service ---
	searchSvc := search.New(embedder, vectorStore, search.DefaultOptions(), logger)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/alerts", handleAlerts(recordStore, logger))
	mux.HandleFunc("POST /api/search", handleSearch(searchSvc, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("crisiswatch-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.Auth(cfg.APIToken),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleAlerts(store *records.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
				return
			}
			limit = n
		}

		recs, err := store.FindRecent(r.Context(), limit)
		if err != nil {
			logger.Error("alert listing failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []domain.Record{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recs)
	}
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchResponse is the JSON response for POST /api/search.
type SearchResponse struct {
	Results []domain.ScoredRecord `json:"results"`
}

func handleSearch(svc *search.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		hits, err := svc.Search(r.Context(), req.Query, req.K)
		if err != nil {
			writeSearchError(w, err, logger)
			return
		}

		if hits == nil {
			hits = []domain.ScoredRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{Results: hits})
	}
}

// writeSearchError maps domain errors to HTTP statuses without leaking
// backend detail to the client.
func writeSearchError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		http.Error(w, `{"error":"query must be non-empty text"}`, http.StatusBadRequest)
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		logger.Error("query embedding failed", "err", err)
		http.Error(w, `{"error":"search temporarily unavailable"}`, http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrSearchBackendError):
		logger.Error("search backend failed", "err", err)
		http.Error(w, `{"error":"search temporarily unavailable"}`, http.StatusServiceUnavailable)
	default:
		logger.Error("search failed", "err", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}
