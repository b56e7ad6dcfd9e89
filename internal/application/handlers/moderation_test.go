package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/services"
)

func proposePerson(t *testing.T, s *stack, name string) *entities.ChangeRequest {
	t.Helper()
	res, err := s.catalog.Person.Create(context.Background(), s.user.ID, map[string]any{"name": name}, "")
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	return res.Request
}

func TestModerationHandler_HandleList(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewModerationHandler(s.moderation)
	proposePerson(t, s, "Ada")
	proposePerson(t, s, "Grace")
	_, err := s.catalog.Country.Create(context.Background(), s.user.ID, map[string]any{"name": "Prussia"}, "")
	require.NoError(t, err)

	tests := []struct {
		name      string
		actor     string
		opts      ListOptions
		wantTotal int
		wantErr   error
	}{
		{name: "queue", actor: s.mod.ID, wantTotal: 3},
		{name: "queue by type", actor: s.mod.ID, opts: ListOptions{EntityType: "person"}, wantTotal: 2},
		{name: "approved only", actor: s.mod.ID, opts: ListOptions{Status: "approved"}, wantTotal: 0},
		{name: "own requests", actor: s.user.ID, opts: ListOptions{Mine: true}, wantTotal: 3},
		{name: "user cannot see queue", actor: s.user.ID, wantErr: domainErr.ErrAuthorization},
		{name: "bad entity type", actor: s.mod.ID, opts: ListOptions{EntityType: "DRAGON"}, wantErr: domainErr.ErrValidation},
		{name: "bad status", actor: s.mod.ID, opts: ListOptions{Status: "LOST"}, wantErr: domainErr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler.HandleList(context.Background(), tt.actor, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, result.Total)
			assert.Len(t, result.Requests, tt.wantTotal)
		})
	}
}

func TestModerationHandler_ApproveAndReject(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewModerationHandler(s.moderation)
	first := proposePerson(t, s, "Ada")
	second := proposePerson(t, s, "Grace")

	approved, err := handler.HandleApprove(context.Background(), s.mod.ID, first.ID, "sourced")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusApproved, approved.Request.Status)
	assert.NotEmpty(t, approved.EntityID)

	_, err = handler.HandleReject(context.Background(), s.mod.ID, second.ID, "too short")
	assert.ErrorIs(t, err, domainErr.ErrValidation)

	rejected, err := handler.HandleReject(context.Background(), s.mod.ID, second.ID, "duplicate of an existing entry")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusRejected, rejected.Status)

	shown, err := handler.HandleShow(context.Background(), s.user.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "duplicate of an existing entry", shown.ReviewComment)
}

func TestModerationHandler_HandleApprovePartialFailure(t *testing.T) {
	policy := services.DefaultModerationPolicy()
	policy.Atomic = false
	s := newStack(t, policy)
	handler := NewModerationHandler(s.moderation)
	cr := proposePerson(t, s, "Ada")
	s.db.CatalogWriteErr = errors.New("disk full")

	result, err := handler.HandleApprove(context.Background(), s.mod.ID, cr.ID, "")
	require.Error(t, err)
	assert.ErrorContains(t, err, "approval recorded, but applying the change failed: ")
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorIs(t, err, domainErr.ErrPartialApproval)
	assert.ErrorIs(t, err, s.db.CatalogWriteErr)

	var applyErr *ApplyFailedError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, cr.ID, applyErr.Partial.RequestID)

	require.NotNil(t, result)
	assert.Equal(t, entities.StatusApproved, result.Request.Status)
}

func TestModerationHandler_HandleApproveErrors(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewModerationHandler(s.moderation)
	cr := proposePerson(t, s, "Ada")

	result, err := handler.HandleApprove(context.Background(), s.user.ID, cr.ID, "")
	assert.ErrorIs(t, err, domainErr.ErrAuthorization)
	assert.Nil(t, result)

	_, err = handler.HandleApprove(context.Background(), s.mod.ID, "missing", "")
	assert.ErrorIs(t, err, domainErr.ErrNotFound)
}

func TestModerationHandler_StatsAndPurge(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewModerationHandler(s.moderation)
	cr := proposePerson(t, s, "Ada")
	_, err := handler.HandleApprove(context.Background(), s.mod.ID, cr.ID, "")
	require.NoError(t, err)
	proposePerson(t, s, "Grace")

	stats, err := handler.HandleStats(context.Background(), s.mod.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByStatus[entities.StatusApproved])
	assert.Equal(t, 1, stats.PendingTotal)
	assert.Nil(t, stats.PurgeableCount)

	_, err = handler.HandlePurge(context.Background(), s.admin.ID, 5)
	assert.ErrorIs(t, err, domainErr.ErrValidation)

	purged, err := handler.HandlePurge(context.Background(), s.admin.ID, 30)
	require.NoError(t, err)
	assert.Zero(t, purged.Deleted)
}

func TestModerationHandler_HandleSimilarWithoutIndex(t *testing.T) {
	s := newStack(t, services.DefaultModerationPolicy())
	handler := NewModerationHandler(s.moderation)
	cr := proposePerson(t, s, "Ada")

	hits, err := handler.HandleSimilar(context.Background(), s.mod.ID, cr.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
