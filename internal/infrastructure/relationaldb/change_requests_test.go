package relationaldb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

func newPersonRequest(requester string) *entities.ChangeRequest {
	return &entities.ChangeRequest{
		EntityType:  entities.EntityPerson,
		Operation:   entities.OpCreate,
		RequesterID: requester,
		Payload:     map[string]any{"name": "Ada"},
	}
}

func TestRepository_CreateChangeRequest(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("valid request is pending", func(t *testing.T) {
		cr := newPersonRequest("u1")
		cr.RequestComment = "please add"
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))
		assert.NotEmpty(t, cr.ID)

		found, err := repo.FindChangeRequest(ctx, cr.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusPending, found.Status)
		assert.Empty(t, found.EntityID)
		assert.Equal(t, "Ada", found.Payload["name"])
		assert.Equal(t, "please add", found.RequestComment)
		assert.Nil(t, found.ReviewedAt)
		assert.Empty(t, found.ReviewerID)
	})

	tests := []struct {
		name string
		cr   *entities.ChangeRequest
	}{
		{"create with entity id", &entities.ChangeRequest{EntityType: entities.EntityPerson, Operation: entities.OpCreate, EntityID: "x", RequesterID: "u1", Payload: map[string]any{"name": "A"}}},
		{"update without entity id", &entities.ChangeRequest{EntityType: entities.EntityEvent, Operation: entities.OpUpdate, RequesterID: "u1", Payload: map[string]any{"title": "A"}}},
		{"delete with extra keys", &entities.ChangeRequest{EntityType: entities.EntitySource, Operation: entities.OpDelete, EntityID: "x", RequesterID: "u1", Payload: map[string]any{"title": "A"}}},
		{"unknown entity type", &entities.ChangeRequest{EntityType: "PLANET", Operation: entities.OpCreate, RequesterID: "u1", Payload: map[string]any{"name": "A"}}},
		{"non-pending status", &entities.ChangeRequest{EntityType: entities.EntityPerson, Operation: entities.OpCreate, RequesterID: "u1", Payload: map[string]any{"name": "A"}, Status: entities.StatusApproved}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.CreateChangeRequest(ctx, tt.cr)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainErr.ErrValidation)
		})
	}

	t.Run("nothing invalid was persisted", func(t *testing.T) {
		_, total, err := repo.ListChangeRequests(ctx, entities.ChangeRequestFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}

func TestRepository_FindChangeRequest_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.FindChangeRequest(context.Background(), "missing")
	require.Error(t, err)
	var nf *domainErr.EntityNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestRepository_ListChangeRequests(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		cr := newPersonRequest("u1")
		if i%2 == 1 {
			cr.RequesterID = "u2"
		}
		cr.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))
	}
	ev := &entities.ChangeRequest{EntityType: entities.EntityEvent, Operation: entities.OpCreate, RequesterID: "u1", Payload: map[string]any{"title": "Siege"}, CreatedAt: base.Add(10 * time.Hour)}
	require.NoError(t, repo.CreateChangeRequest(ctx, ev))

	t.Run("paged newest first with total", func(t *testing.T) {
		page, total, err := repo.ListChangeRequests(ctx, entities.ChangeRequestFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		require.Len(t, page, 2)
		assert.Equal(t, ev.ID, page[0].ID)
		assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))
	})

	t.Run("filter by requester and type", func(t *testing.T) {
		page, total, err := repo.ListChangeRequests(ctx, entities.ChangeRequestFilter{RequesterID: "u2"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, page, 2)

		_, total, err = repo.ListChangeRequests(ctx, entities.ChangeRequestFilter{EntityType: entities.EntityEvent, Status: entities.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("offset past the end", func(t *testing.T) {
		page, total, err := repo.ListChangeRequests(ctx, entities.ChangeRequestFilter{Offset: 100})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		assert.Empty(t, page)
	})
}

func TestRepository_MarkReviewed(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("approve sets reviewer fields together", func(t *testing.T) {
		cr := newPersonRequest("u1")
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))

		approved, err := repo.MarkApproved(ctx, cr.ID, "mod", "looks good")
		require.NoError(t, err)
		assert.Equal(t, entities.StatusApproved, approved.Status)
		assert.Equal(t, "mod", approved.ReviewerID)
		assert.Equal(t, "looks good", approved.ReviewComment)
		require.NotNil(t, approved.ReviewedAt)
		assert.Equal(t, "Ada", approved.Payload["name"])

		_, err = repo.MarkRejected(ctx, cr.ID, "mod", "too late for this")
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErr.ErrValidation)
		assert.Contains(t, err.Error(), "already reviewed")
	})

	t.Run("reject requires comment", func(t *testing.T) {
		cr := newPersonRequest("u1")
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))

		_, err := repo.MarkRejected(ctx, cr.ID, "mod", "   ")
		assert.ErrorIs(t, err, domainErr.ErrValidation)

		rejected, err := repo.MarkRejected(ctx, cr.ID, "mod", "duplicate entry")
		require.NoError(t, err)
		assert.Equal(t, entities.StatusRejected, rejected.Status)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := repo.MarkApproved(ctx, "missing", "mod", "")
		assert.ErrorIs(t, err, domainErr.ErrNotFound)
	})

	t.Run("concurrent approvals: exactly one wins", func(t *testing.T) {
		cr := newPersonRequest("u1")
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))

		const racers = 4
		var wg sync.WaitGroup
		errs := make([]error, racers)
		for i := range racers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.MarkApproved(ctx, cr.ID, "mod", "")
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, domainErr.ErrValidation)
		}
		assert.Equal(t, 1, wins)
	})
}

func TestRepository_Purge(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -60)

	create := func(createdAt time.Time) *entities.ChangeRequest {
		cr := newPersonRequest("u1")
		cr.CreatedAt = createdAt
		require.NoError(t, repo.CreateChangeRequest(ctx, cr))
		return cr
	}
	review := func(id string, at time.Time, approve bool) {
		timeNow = func() time.Time { return at }
		defer func() { timeNow = time.Now }()
		var err error
		if approve {
			_, err = repo.MarkApproved(ctx, id, "mod", "")
		} else {
			_, err = repo.MarkRejected(ctx, id, "mod", "not a real person")
		}
		require.NoError(t, err)
	}

	oldPending := create(old.AddDate(0, 0, -30))
	oldApproved := create(old.AddDate(0, 0, -1))
	review(oldApproved.ID, old, true)
	oldRejected := create(old.AddDate(0, 0, -1))
	review(oldRejected.ID, old, false)
	recentApproved := create(old)
	review(recentApproved.ID, now.AddDate(0, 0, -5), true)

	cutoff := now.AddDate(0, 0, -30)

	n, err := repo.CountPurgeable(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := repo.PurgeChangeRequests(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = repo.FindChangeRequest(ctx, oldPending.ID)
	assert.NoError(t, err, "pending requests are never purged")
	_, err = repo.FindChangeRequest(ctx, recentApproved.ID)
	assert.NoError(t, err, "recently reviewed requests are kept")
	_, err = repo.FindChangeRequest(ctx, oldApproved.ID)
	assert.ErrorIs(t, err, domainErr.ErrNotFound)
}

func TestRepository_Statistics(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := newPersonRequest("u1")
	a.CreatedAt = created
	require.NoError(t, repo.CreateChangeRequest(ctx, a))
	b := &entities.ChangeRequest{EntityType: entities.EntityCountry, Operation: entities.OpCreate, RequesterID: "u1", Payload: map[string]any{"name": "Burgundy"}, CreatedAt: created}
	require.NoError(t, repo.CreateChangeRequest(ctx, b))
	c := newPersonRequest("u2")
	c.CreatedAt = created
	require.NoError(t, repo.CreateChangeRequest(ctx, c))

	timeNow = func() time.Time { return created.Add(2 * time.Hour) }
	_, err := repo.MarkApproved(ctx, a.ID, "mod", "")
	require.NoError(t, err)
	timeNow = func() time.Time { return created.Add(4 * time.Hour) }
	_, err = repo.MarkRejected(ctx, b.ID, "mod", "not a country")
	require.NoError(t, err)
	timeNow = time.Now

	since := created.Add(-time.Hour)

	byStatus, err := repo.CountByStatus(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, map[entities.Status]int{
		entities.StatusApproved: 1,
		entities.StatusRejected: 1,
		entities.StatusPending:  1,
	}, byStatus)

	byType, err := repo.CountByEntityType(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, byType[entities.EntityPerson])
	assert.Equal(t, 1, byType[entities.EntityCountry])

	avg, err := repo.AverageReviewTime(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, avg)

	avg, err = repo.AverageReviewTime(ctx, created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, avg)
}
