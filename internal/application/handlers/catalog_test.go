package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/services"
)

func TestCatalogHandler_HandlePropose(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewCatalogHandler(s.catalog)
	ctx := context.Background()

	created, err := handler.HandlePropose(ctx, ProposeRequest{
		ActorID:    s.mod.ID,
		EntityType: "document",
		Operation:  "create",
		Fields:     map[string]any{"title": "Magna Carta", "created_date": "1215"},
	})
	require.NoError(t, err)
	require.True(t, created.Applied)

	updated, err := handler.HandlePropose(ctx, ProposeRequest{
		ActorID:    s.user.ID,
		EntityType: "DOCUMENT",
		Operation:  "UPDATE",
		EntityID:   created.EntityID,
		Fields:     map[string]any{"title": "Magna Carta Libertatum"},
		Comment:    "full title",
	})
	require.NoError(t, err)
	assert.False(t, updated.Applied)
	require.NotNil(t, updated.Request)
	assert.Equal(t, "Magna Carta", updated.Request.PriorSnapshot["title"])

	deleted, err := handler.HandlePropose(ctx, ProposeRequest{
		ActorID:    s.admin.ID,
		EntityType: "DOCUMENT",
		Operation:  "DELETE",
		EntityID:   created.EntityID,
		Comment:    "forgery",
	})
	require.NoError(t, err)
	assert.True(t, deleted.Applied)
	assert.Zero(t, s.db.RecordCount(entities.EntityDocument))
}

func TestCatalogHandler_HandleProposeErrors(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewCatalogHandler(s.catalog)

	tests := []struct {
		name string
		req  ProposeRequest
	}{
		{name: "unknown type", req: ProposeRequest{ActorID: s.user.ID, EntityType: "DRAGON", Operation: "CREATE", Fields: map[string]any{"name": "x"}}},
		{name: "unknown operation", req: ProposeRequest{ActorID: s.user.ID, EntityType: "PERSON", Operation: "MERGE"}},
		{name: "create with id", req: ProposeRequest{ActorID: s.user.ID, EntityType: "PERSON", Operation: "CREATE", EntityID: "x", Fields: map[string]any{"name": "x"}}},
		{name: "unknown field", req: ProposeRequest{ActorID: s.user.ID, EntityType: "PERSON", Operation: "CREATE", Fields: map[string]any{"name": "x", "height": "tall"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.HandlePropose(context.Background(), tt.req)
			assert.ErrorIs(t, err, domainErr.ErrValidation)
		})
	}
}

func TestCatalogHandler_ListAndGet(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewCatalogHandler(s.catalog)
	ctx := context.Background()

	res, err := handler.HandlePropose(ctx, ProposeRequest{ActorID: s.mod.ID, EntityType: "SOURCE", Operation: "CREATE", Fields: map[string]any{"title": "Annals"}})
	require.NoError(t, err)

	list, err := handler.HandleList(ctx, "source", 10, 0)
	require.NoError(t, err)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "Annals", list.Records[0].Label())

	rec, err := handler.HandleGet(ctx, "SOURCE", res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, res.EntityID, rec.ID)

	_, err = handler.HandleGet(ctx, "SOURCE", "missing")
	assert.ErrorIs(t, err, domainErr.ErrNotFound)

	_, err = handler.HandleList(ctx, "DRAGON", 10, 0)
	assert.ErrorIs(t, err, domainErr.ErrValidation)
}
