// Package semantic owns the vector index over record embeddings. The Qdrant
// collection is the nearest-neighbor half of the upsert store; the canonical
// record documents live in engine/records.
package semantic

import (
	"context"
	"fmt"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// dims is the embedding model's fixed dimensionality; vectors of any other
// length are rejected at the store boundary.
func New(addr, collection string, dims int) (*VectorStore, error) {
	if dims <= 0 {
		return nil, domain.NewConfigError("embeddingDims", "must be positive")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// Dims returns the configured vector dimensionality.
func (v *VectorStore) Dims() int { return v.dims }

// EnsureCollection creates the collection if it doesn't exist. Cosine
// distance matches the embedding model's training objective.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// PointID derives the deterministic point UUID for an external identifier,
// so re-ingesting the same record overwrites its point instead of adding a
// duplicate.
func PointID(externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("crisiswatch:record:"+externalID)).String()
}

// Upsert stores a record's embedding and search payload. The record must
// carry a vector of the configured dimension.
func (v *VectorStore) Upsert(ctx context.Context, rec domain.Record) error {
	if len(rec.Embedding) != v.dims {
		return fmt.Errorf("%w: record %s has %d values, index expects %d",
			domain.ErrDimensionMismatch, rec.ExternalID, len(rec.Embedding), v.dims)
	}

	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.ExternalID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Embedding},
			},
		},
		Payload: toPayload(rec),
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert point %s: %w", rec.ExternalID, err)
	}
	return nil
}

// Search performs k-NN similarity search and returns at most k records in
// descending score order. Only records that were upserted with a vector are
// candidates; partial records never reach this index.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, k int) ([]domain.ScoredRecord, error) {
	if len(embedding) != v.dims {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d",
			domain.ErrDimensionMismatch, len(embedding), v.dims)
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]domain.ScoredRecord, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		rec, err := fromPayload(hit.GetPayload())
		if err != nil {
			// A payload this store didn't write; skip rather than fail the query.
			continue
		}
		results = append(results, domain.ScoredRecord{Record: rec, Score: hit.GetScore()})
	}
	return results, nil
}
