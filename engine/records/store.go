// Package records persists the canonical disaster records in MongoDB, keyed
// uniquely by the upstream external identifier. It is the metadata half of
// the upsert store; embeddings are additionally indexed by engine/semantic.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by Get when no record has the given external id.
var ErrNotFound = errors.New("record not found")

// Store is a MongoDB-backed record collection.
type Store struct {
	coll *mongo.Collection
}

// NewStore wraps an existing collection handle. Connection lifecycle is
// owned by the process entry point.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes creates the unique key index and the recency sort index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reliefwebId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "date", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("records: create indexes: %w", err)
	}
	return nil
}

// upsertUpdate builds the update document for a record. The embedding field
// is only part of the update when the new record carries one: an upsert must
// never downgrade a previously stored embedding to absent.
func upsertUpdate(rec domain.Record) bson.M {
	set := bson.M{
		"reliefwebId": rec.ExternalID,
		"title":       rec.Title,
		"date":        rec.OccurredAt,
		"type":        rec.Category,
		"country":     rec.Region,
		"status":      rec.Status,
		"description": rec.Description,
		"url":         rec.SourceURL,
	}
	if rec.HasEmbedding() {
		set["embedding"] = rec.Embedding
	}
	if rec.Geo != nil {
		set["location"] = rec.Geo
	}
	return bson.M{"$set": set}
}

// Upsert inserts or replaces the record keyed by its external identifier and
// returns the stored state. Concurrent upserts of the same key resolve
// last-write-wins on the whole field set.
func (s *Store) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored domain.Record
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"reliefwebId": rec.ExternalID},
		upsertUpdate(rec),
		opts,
	).Decode(&stored)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: upsert %s: %v", domain.ErrStoreWriteFailed, rec.ExternalID, err)
	}
	return stored, nil
}

// Get fetches one record by external identifier.
func (s *Store) Get(ctx context.Context, externalID string) (domain.Record, error) {
	var rec domain.Record
	err := s.coll.FindOne(ctx, bson.M{"reliefwebId": externalID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Record{}, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("records: get %s: %w", externalID, err)
	}
	return rec, nil
}

// FindRecent returns up to limit records ordered by event date descending.
func (s *Store) FindRecent(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("records: find recent: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("records: decode recent: %w", err)
	}
	return out, nil
}

// FindMissingEmbedding returns up to limit records whose embedding is
// absent, oldest first, for the backfill pass.
func (s *Store) FindMissingEmbedding(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"embedding": bson.M{"$exists": false}},
		bson.M{"embedding": bson.M{"$size": 0}},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("records: find missing embedding: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("records: decode missing embedding: %w", err)
	}
	return out, nil
}

// SetEmbedding attaches a vector to an existing record without touching the
// other fields. Used by the backfill pass.
func (s *Store) SetEmbedding(ctx context.Context, externalID string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("records: refusing to set empty embedding for %s", externalID)
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"reliefwebId": externalID},
		bson.M{"$set": bson.M{"embedding": embedding}},
	)
	if err != nil {
		return fmt.Errorf("%w: set embedding %s: %v", domain.ErrStoreWriteFailed, externalID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	return nil
}
