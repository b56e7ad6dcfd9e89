package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

func TestChangeRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChangeRequest
		wantErr bool
		field   string
	}{
		{
			name: "valid create",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityPerson,
				Operation:   OpCreate,
				Payload:     map[string]any{"name": "Napoleon"},
			},
		},
		{
			name: "create with entity id",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityPerson,
				Operation:   OpCreate,
				EntityID:    "p1",
				Payload:     map[string]any{"name": "Napoleon"},
			},
			wantErr: true,
			field:   "entity_id",
		},
		{
			name: "update without entity id",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityCountry,
				Operation:   OpUpdate,
				Payload:     map[string]any{"name": "France"},
			},
			wantErr: true,
			field:   "entity_id",
		},
		{
			name: "delete without entity id",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityEvent,
				Operation:   OpDelete,
			},
			wantErr: true,
			field:   "entity_id",
		},
		{
			name: "delete with reason only",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityEvent,
				Operation:   OpDelete,
				EntityID:    "e1",
				Payload:     map[string]any{"reason": "duplicate"},
			},
		},
		{
			name: "delete with extra payload",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityEvent,
				Operation:   OpDelete,
				EntityID:    "e1",
				Payload:     map[string]any{"title": "x"},
			},
			wantErr: true,
			field:   "payload",
		},
		{
			name: "unknown entity type",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntityType("DRAGON"),
				Operation:   OpCreate,
				Payload:     map[string]any{"name": "x"},
			},
			wantErr: true,
			field:   "entity_type",
		},
		{
			name: "unknown operation",
			req: ChangeRequest{
				RequesterID: "u1",
				EntityType:  EntitySource,
				Operation:   OperationType("MERGE"),
			},
			wantErr: true,
			field:   "operation_type",
		},
		{
			name: "missing requester",
			req: ChangeRequest{
				EntityType: EntitySource,
				Operation:  OpCreate,
				Payload:    map[string]any{"title": "x"},
			},
			wantErr: true,
			field:   "requester_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domainErr.ErrValidation)

			var vErr *domainErr.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

func TestParseEnums(t *testing.T) {
	et, err := ParseEntityType("person")
	require.NoError(t, err)
	assert.Equal(t, EntityPerson, et)

	op, err := ParseOperation(" delete ")
	require.NoError(t, err)
	assert.Equal(t, OpDelete, op)

	st, err := ParseStatus("Rejected")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, st)

	_, err = ParseEntityType("planet")
	assert.ErrorIs(t, err, domainErr.ErrValidation)
}

func TestAuditTags(t *testing.T) {
	assert.Equal(t, "PERSON_UPDATE_REQUESTED", RequestedAction(EntityPerson, OpUpdate))
	assert.Equal(t, "COUNTRY_APPROVED", ReviewAction(EntityCountry, ActionApproved))
	assert.Equal(t, "SOURCE_DELETED", AppliedAction(EntitySource, OpDelete))
	assert.Equal(t, "EVENT_CREATED", AppliedAction(EntityEvent, OpCreate))
}
