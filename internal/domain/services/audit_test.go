package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

func TestAuditService_History(t *testing.T) {
	f := newModerationFixture(t, DefaultModerationPolicy())
	svc := NewAuditService(f.db, f.gate)
	cr := f.submitCreate(t, "Ada")
	_, err := f.moderation.Approve(context.Background(), f.mod.ID, cr.ID, "")
	require.NoError(t, err)

	records, err := svc.History(context.Background(), f.admin.ID, entities.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "PERSON_APPROVED", records[0].ActionType)

	records, err = svc.History(context.Background(), f.admin.ID, entities.AuditFilter{UserID: f.user.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PERSON_CREATE_REQUESTED", records[0].ActionType)

	_, err = svc.History(context.Background(), f.mod.ID, entities.AuditFilter{})
	assert.ErrorIs(t, err, domainErr.ErrAuthorization)
}
