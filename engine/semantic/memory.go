package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/crisiswatch/crisiswatch/engine/domain"
)

// MemoryIndex is an in-memory cosine-similarity index with the same contract
// as VectorStore. It backs tests and local runs without a Qdrant instance.
type MemoryIndex struct {
	mu   sync.RWMutex
	dims int
	recs map[string]domain.Record
}

// NewMemoryIndex creates an index for vectors of the given dimension.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{dims: dims, recs: make(map[string]domain.Record)}
}

// Dims returns the configured vector dimensionality.
func (m *MemoryIndex) Dims() int { return m.dims }

// Len returns the number of indexed records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

// Upsert stores or replaces the record keyed by its external identifier.
func (m *MemoryIndex) Upsert(_ context.Context, rec domain.Record) error {
	if len(rec.Embedding) != m.dims {
		return fmt.Errorf("%w: record %s has %d values, index expects %d",
			domain.ErrDimensionMismatch, rec.ExternalID, len(rec.Embedding), m.dims)
	}
	cp := rec
	cp.Embedding = append([]float32(nil), rec.Embedding...)
	m.mu.Lock()
	m.recs[rec.ExternalID] = cp
	m.mu.Unlock()
	return nil
}

// Search returns the k nearest records by cosine similarity, scores
// descending. Ties are broken by external identifier so identical inputs
// yield identical output order.
func (m *MemoryIndex) Search(_ context.Context, embedding []float32, k int) ([]domain.ScoredRecord, error) {
	if len(embedding) != m.dims {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d",
			domain.ErrDimensionMismatch, len(embedding), m.dims)
	}

	m.mu.RLock()
	hits := make([]domain.ScoredRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		cp := rec
		cp.Embedding = nil
		hits = append(hits, domain.ScoredRecord{Record: cp, Score: cosine(embedding, rec.Embedding)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ExternalID < hits[j].ExternalID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
