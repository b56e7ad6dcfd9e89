package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

const reindexPageSize = 100

// SimilarityService keeps the similarity index in step with the catalog
// and answers duplicate lookups for moderators.
type SimilarityService struct {
	embedder ports.Embedder
	index    ports.VectorIndex
}

// NewSimilarityService creates a new SimilarityService.
func NewSimilarityService(embedder ports.Embedder, index ports.VectorIndex) *SimilarityService {
	return &SimilarityService{embedder: embedder, index: index}
}

// Index embeds the summary of rec and stores it.
func (s *SimilarityService) Index(ctx context.Context, rec *entities.CatalogRecord) error {
	summary := entities.Describe(rec.Type, rec.Fields)
	embedding, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embedding %s %s: %w", rec.Type, rec.ID, err)
	}
	return s.index.Upsert(ctx, entities.IndexedEntity{
		ID:         rec.ID,
		EntityType: rec.Type,
		Label:      rec.Label(),
		Summary:    summary,
		Embedding:  embedding,
	})
}

// Remove drops a record from the index.
func (s *SimilarityService) Remove(ctx context.Context, id string) error {
	return s.index.Delete(ctx, id)
}

// Sync mirrors an applied change into the index. Failures are logged and
// never returned, the catalog stays authoritative.
func (s *SimilarityService) Sync(ctx context.Context, op entities.OperationType, t entities.EntityType, applied ApplyResult) {
	var err error
	switch op {
	case entities.OpCreate, entities.OpUpdate:
		if applied.After != nil {
			err = s.Index(ctx, applied.After)
		}
	case entities.OpDelete:
		err = s.Remove(ctx, applied.EntityID)
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type": t,
			"entity":      applied.EntityID,
		}).Warn("similarity index out of date")
	}
}

// FindSimilar returns up to limit records of type t resembling text.
// excludeID drops the record being edited from the results.
func (s *SimilarityService) FindSimilar(ctx context.Context, t entities.EntityType, text string, limit int, excludeID string) ([]entities.SimilarEntity, error) {
	if limit <= 0 {
		limit = 5
	}
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// One extra hit covers the excluded record.
	hits, err := s.index.Search(ctx, embedding, t, limit+1)
	if err != nil {
		return nil, fmt.Errorf("searching similarity index: %w", err)
	}

	out := make([]entities.SimilarEntity, 0, limit)
	for _, hit := range hits {
		if hit.ID == excludeID {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Reindex rebuilds the index from every catalog record and returns the
// number of records indexed.
func (s *SimilarityService) Reindex(ctx context.Context, catalog ports.CatalogStore) (int, error) {
	total := 0
	for _, t := range entities.EntityTypes {
		for offset := 0; ; offset += reindexPageSize {
			page, err := catalog.ListRecords(ctx, t, reindexPageSize, offset)
			if err != nil {
				return total, fmt.Errorf("listing %s records: %w", t, err)
			}
			if len(page) == 0 {
				break
			}

			summaries := make([]string, len(page))
			for i := range page {
				summaries[i] = entities.Describe(t, page[i].Fields)
			}
			embeddings, err := s.embedder.EmbedBatch(ctx, summaries)
			if err != nil {
				return total, fmt.Errorf("embedding %s records: %w", t, err)
			}

			for i := range page {
				err := s.index.Upsert(ctx, entities.IndexedEntity{
					ID:         page[i].ID,
					EntityType: t,
					Label:      page[i].Label(),
					Summary:    summaries[i],
					Embedding:  embeddings[i],
				})
				if err != nil {
					return total, fmt.Errorf("indexing %s %s: %w", t, page[i].ID, err)
				}
				total++
			}

			if len(page) < reindexPageSize {
				break
			}
		}
	}
	log.WithField("records", total).Info("similarity index rebuilt")
	return total, nil
}
