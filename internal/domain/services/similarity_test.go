package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/mocks"
)

func TestSimilarityService_FindSimilarExcludesSelf(t *testing.T) {
	index := mocks.NewVectorIndex()
	index.Hits = []entities.SimilarEntity{
		{ID: "p-1", EntityType: entities.EntityPerson, Score: 0.99},
		{ID: "p-2", EntityType: entities.EntityPerson, Score: 0.90},
		{ID: "p-3", EntityType: entities.EntityPerson, Score: 0.80},
	}
	svc := NewSimilarityService(&mocks.Embedder{EmbeddingResult: []float32{1}}, index)

	hits, err := svc.FindSimilar(context.Background(), entities.EntityPerson, "PERSON: Ada", 2, "p-1")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "p-2", hits[0].ID)
	assert.Equal(t, "p-3", hits[1].ID)
}

func TestSimilarityService_FindSimilarErrors(t *testing.T) {
	svc := NewSimilarityService(&mocks.Embedder{Err: errors.New("quota")}, mocks.NewVectorIndex())
	_, err := svc.FindSimilar(context.Background(), entities.EntityPerson, "x", 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")

	index := mocks.NewVectorIndex()
	index.Err = errors.New("unavailable")
	svc = NewSimilarityService(&mocks.Embedder{EmbeddingResult: []float32{1}}, index)
	_, err = svc.FindSimilar(context.Background(), entities.EntityPerson, "x", 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searching similarity index")
}

func TestSimilarityService_Sync(t *testing.T) {
	index := mocks.NewVectorIndex()
	svc := NewSimilarityService(&mocks.Embedder{EmbeddingResult: []float32{1}}, index)
	rec := &entities.CatalogRecord{ID: "c-1", Type: entities.EntityCountry, Fields: map[string]any{"name": "Prussia", "capital": "Berlin"}}

	svc.Sync(context.Background(), entities.OpCreate, entities.EntityCountry, ApplyResult{EntityID: rec.ID, After: rec})
	doc, ok := index.Doc("c-1")
	require.True(t, ok)
	assert.Equal(t, "COUNTRY: Prussia; capital: Berlin", doc.Summary)

	svc.Sync(context.Background(), entities.OpDelete, entities.EntityCountry, ApplyResult{EntityID: rec.ID, Before: rec})
	_, ok = index.Doc("c-1")
	assert.False(t, ok)
}

func TestSimilarityService_Reindex(t *testing.T) {
	db := mocks.NewRelationalDB()
	ctx := context.Background()
	for _, name := range []string{"Ada", "Grace"} {
		require.NoError(t, db.InsertRecord(ctx, &entities.CatalogRecord{Type: entities.EntityPerson, Fields: map[string]any{"name": name}}))
	}
	require.NoError(t, db.InsertRecord(ctx, &entities.CatalogRecord{Type: entities.EntityEvent, Fields: map[string]any{"title": "Battle of Jena"}}))

	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.5}}
	index := mocks.NewVectorIndex()
	svc := NewSimilarityService(embedder, index)

	n, err := svc.Reindex(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, index.Docs, 3)
	assert.ElementsMatch(t, []string{"PERSON: Ada", "PERSON: Grace", "EVENT: Battle of Jena"}, embedder.Texts)
}
