package mocks

import (
	"context"
	"sync"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

// VectorIndex is a mock implementation of ports.VectorIndex and
// ports.CollectionManager.
type VectorIndex struct {
	mu   sync.Mutex
	Docs map[string]entities.IndexedEntity
	// Hits is returned by Search, filtered by entity type.
	Hits []entities.SimilarEntity
	Err  error

	// Collection errors (separate from Err for fine-grained control)
	EnsureCollectionErr error
	DeleteCollectionErr error

	// Call tracking
	UpsertCallCount           int
	DeleteCallCount           int
	SearchCallCount           int
	EnsureCollectionCallCount int
	DeleteCollectionCallCount int
}

// NewVectorIndex creates an empty mock index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{Docs: make(map[string]entities.IndexedEntity)}
}

// EnsureCollection creates the collection if it doesn't exist.
func (m *VectorIndex) EnsureCollection(_ context.Context, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureCollectionCallCount++
	return m.EnsureCollectionErr
}

// DeleteCollection removes the collection and all its data.
func (m *VectorIndex) DeleteCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCollectionCallCount++
	m.Docs = make(map[string]entities.IndexedEntity)
	return m.DeleteCollectionErr
}

// Upsert stores a document.
func (m *VectorIndex) Upsert(_ context.Context, doc entities.IndexedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCallCount++
	if m.Err != nil {
		return m.Err
	}
	m.Docs[doc.ID] = doc
	return nil
}

// Search returns the configured hits of the requested type.
func (m *VectorIndex) Search(_ context.Context, _ []float32, t entities.EntityType, limit int) ([]entities.SimilarEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []entities.SimilarEntity
	for _, hit := range m.Hits {
		if hit.EntityType == t {
			out = append(out, hit)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Delete removes a document.
func (m *VectorIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCallCount++
	if m.Err != nil {
		return m.Err
	}
	delete(m.Docs, id)
	return nil
}

// Doc returns the stored document for id.
func (m *VectorIndex) Doc(id string) (entities.IndexedEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.Docs[id]
	return doc, ok
}
