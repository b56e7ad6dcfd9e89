package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/infrastructure/parsers"
)

func TestImportService_Import(t *testing.T) {
	f := newModerationFixture(t, DefaultModerationPolicy())
	existing := f.seedPerson(t, "Ada")
	svc := NewImportService(f.catalog)

	records := []parsers.RawRecord{
		{EntityType: "person", Fields: map[string]any{"name": "Grace"}, LineNum: 2},
		{Operation: "update", EntityType: "PERSON", EntityID: existing, Fields: map[string]any{"name": "Ada Lovelace"}, LineNum: 3},
		{EntityType: "DRAGON", Fields: map[string]any{"name": "Smaug"}, LineNum: 4},
		{EntityType: "EVENT", Fields: map[string]any{"location": "Vienna"}, LineNum: 5},
		{Operation: "DELETE", EntityType: "PERSON", EntityID: "missing", LineNum: 6},
	}

	result, err := svc.Import(context.Background(), f.user.ID, records, ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Zero(t, result.Applied)
	assert.Equal(t, 2, result.Proposed)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, 4, result.Errors[0].Line)
	assert.Equal(t, "entity_type", result.Errors[0].Field)
	assert.Equal(t, 5, result.Errors[1].Line)
	assert.Equal(t, "title", result.Errors[1].Field)
	assert.Equal(t, 6, result.Errors[2].Line)
	assert.Contains(t, result.Errors[2].Error(), "line 6")

	assert.Len(t, f.db.Requests, 2)
	assert.Equal(t, 1, f.db.RecordCount(entities.EntityPerson))
}

func TestImportService_ModeratorAppliesDirectly(t *testing.T) {
	f := newModerationFixture(t, DefaultModerationPolicy())
	svc := NewImportService(f.catalog)

	records := []parsers.RawRecord{
		{EntityType: "COUNTRY", Fields: map[string]any{"name": "Prussia"}},
		{EntityType: "SOURCE", Fields: map[string]any{"title": "Annals", "publication_date": "0109"}},
	}

	result, err := svc.Import(context.Background(), f.mod.ID, records, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, f.db.RecordCount(entities.EntityCountry))
	assert.Equal(t, 1, f.db.RecordCount(entities.EntitySource))
}

func TestImportService_DryRun(t *testing.T) {
	f := newModerationFixture(t, DefaultModerationPolicy())
	svc := NewImportService(f.catalog)

	records := []parsers.RawRecord{
		{EntityType: "PERSON", Fields: map[string]any{"name": "Grace"}},
		{EntityType: "PERSON", EntityID: "x", Fields: map[string]any{"name": "Ada"}},
		{Operation: "DELETE", EntityType: "PERSON", Fields: map[string]any{"name": "Ada"}, EntityID: "x"},
	}

	result, err := svc.Import(context.Background(), f.mod.ID, records, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.Zero(t, result.Proposed)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].Line)
	assert.Equal(t, "fields", result.Errors[1].Field)
	assert.Empty(t, f.db.Audit)
}

func TestImportService_StoreFailureStops(t *testing.T) {
	f := newModerationFixture(t, DefaultModerationPolicy())
	svc := NewImportService(f.catalog)
	f.db.CatalogWriteErr = errors.New("disk full")

	records := []parsers.RawRecord{
		{EntityType: "PERSON", Fields: map[string]any{"name": "Grace"}, LineNum: 2},
		{EntityType: "PERSON", Fields: map[string]any{"name": "Hedy"}, LineNum: 3},
	}

	result, err := svc.Import(context.Background(), f.mod.ID, records, ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Zero(t, result.Applied)
}
