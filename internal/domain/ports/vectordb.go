package ports

import (
	"context"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

// VectorIndex stores embeddings of catalog records for duplicate detection.
type VectorIndex interface {
	// Upsert stores or replaces the embedding of one record.
	Upsert(ctx context.Context, doc entities.IndexedEntity) error

	// Search returns records of the given type closest to embedding.
	Search(ctx context.Context, embedding []float32, t entities.EntityType, limit int) ([]entities.SimilarEntity, error)

	// Delete removes a record from the index. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
}
