package records

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crisiswatch/crisiswatch/engine/domain"
)

// MemoryStore is an in-memory record store with the same upsert semantics as
// the MongoDB Store. It backs tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]domain.Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]domain.Record)}
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

// Upsert inserts or replaces the record keyed by external identifier. A new
// record without an embedding keeps the previously stored vector.
func (m *MemoryStore) Upsert(_ context.Context, rec domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec
	if old, ok := m.recs[rec.ExternalID]; ok && !rec.HasEmbedding() {
		stored.Embedding = old.Embedding
	}
	if stored.HasEmbedding() {
		stored.Embedding = append([]float32(nil), stored.Embedding...)
	}
	m.recs[rec.ExternalID] = stored
	return stored, nil
}

// Get fetches one record by external identifier.
func (m *MemoryStore) Get(_ context.Context, externalID string) (domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[externalID]
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	return rec, nil
}

// FindRecent returns up to limit records ordered by event date descending.
func (m *MemoryStore) FindRecent(_ context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	out := make([]domain.Record, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindMissingEmbedding returns up to limit records without a vector, oldest
// first.
func (m *MemoryStore) FindMissingEmbedding(_ context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	var out []domain.Record
	for _, rec := range m.recs {
		if !rec.HasEmbedding() {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetEmbedding attaches a vector to an existing record.
func (m *MemoryStore) SetEmbedding(_ context.Context, externalID string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("records: refusing to set empty embedding for %s", externalID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[externalID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	rec.Embedding = append([]float32(nil), embedding...)
	m.recs[externalID] = rec
	return nil
}
