package services

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// MutationResult is the outcome of a catalog mutation. Applied is true
// when the change was made directly; otherwise Request holds the pending
// proposal.
type MutationResult struct {
	Applied  bool                    `json:"applied"`
	EntityID string                  `json:"entity_id,omitempty"`
	Record   *entities.CatalogRecord `json:"record,omitempty"`
	Request  *entities.ChangeRequest `json:"request,omitempty"`
}

// EntityService manages the records of one entity type. Moderators and
// admins change the catalog directly; everyone else files a change request.
type EntityService struct {
	entityType entities.EntityType
	tx         ports.Transactor
	catalog    ports.CatalogStore
	audit      ports.AuditTrail
	gate       *AccessGate
	applier    *ChangeApplier
	moderation *ModerationService
}

// NewEntityService creates a new EntityService for entity type t.
func NewEntityService(
	t entities.EntityType,
	tx ports.Transactor,
	catalog ports.CatalogStore,
	audit ports.AuditTrail,
	gate *AccessGate,
	applier *ChangeApplier,
	moderation *ModerationService,
) *EntityService {
	return &EntityService{
		entityType: t,
		tx:         tx,
		catalog:    catalog,
		audit:      audit,
		gate:       gate,
		applier:    applier,
		moderation: moderation,
	}
}

// Type returns the entity type the service manages.
func (s *EntityService) Type() entities.EntityType {
	return s.entityType
}

// Create adds a record, or proposes it.
func (s *EntityService) Create(ctx context.Context, actorID string, payload map[string]any, comment string) (*MutationResult, error) {
	return s.mutate(ctx, actorID, entities.OpCreate, "", payload, comment)
}

// Update replaces a record with payload, or proposes the replacement.
func (s *EntityService) Update(ctx context.Context, actorID, id string, payload map[string]any, comment string) (*MutationResult, error) {
	return s.mutate(ctx, actorID, entities.OpUpdate, id, payload, comment)
}

// Delete removes a record, or proposes the removal. Only admins delete directly.
func (s *EntityService) Delete(ctx context.Context, actorID, id, reason string) (*MutationResult, error) {
	var payload map[string]any
	if reason = strings.TrimSpace(reason); reason != "" {
		payload = map[string]any{entities.DeleteReasonKey: reason}
	}
	return s.mutate(ctx, actorID, entities.OpDelete, id, payload, reason)
}

// Get finds a record by id.
func (s *EntityService) Get(ctx context.Context, id string) (*entities.CatalogRecord, error) {
	return s.catalog.FindRecord(ctx, s.entityType, id)
}

// List returns records ordered by label with pagination.
func (s *EntityService) List(ctx context.Context, limit, offset int) ([]entities.CatalogRecord, error) {
	return s.catalog.ListRecords(ctx, s.entityType, limit, offset)
}

func (s *EntityService) mutate(ctx context.Context, actorID string, op entities.OperationType, id string, payload map[string]any, comment string) (*MutationResult, error) {
	if op != entities.OpDelete {
		if _, err := entities.NormalizePayload(s.entityType, payload); err != nil {
			return nil, err
		}
	}

	role, err := s.gate.RoleOf(ctx, actorID)
	if err != nil {
		return nil, err
	}

	direct := role.AtLeast(entities.RoleModerator) && (op != entities.OpDelete || role.AtLeast(entities.RoleAdmin))
	if !direct {
		cr, err := s.moderation.Submit(ctx, SubmitParams{
			RequesterID: actorID,
			EntityType:  s.entityType,
			Operation:   op,
			EntityID:    id,
			Payload:     payload,
			Comment:     comment,
		})
		if err != nil {
			return nil, err
		}
		return &MutationResult{EntityID: id, Request: cr}, nil
	}

	if op != entities.OpCreate && strings.TrimSpace(id) == "" {
		return nil, domainErr.NewValidationError("entity_id", "is required for %s", op)
	}

	var applied ApplyResult
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.applier.Apply(ctx, ApplyCommand{
			EntityType:        s.entityType,
			Operation:         op,
			EntityID:          id,
			Payload:           payload,
			ActingModeratorID: actorID,
		})
		if err != nil {
			return err
		}
		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      actorID,
			ActionType:  entities.AppliedAction(s.entityType, op),
			EntityType:  string(s.entityType),
			EntityID:    applied.EntityID,
			OldValue:    snapshotOf(applied.Before),
			NewValue:    snapshotOf(applied.After),
			Description: describeDirect(op, s.entityType, applied, comment),
		})
	})
	if err != nil {
		return nil, err
	}

	s.moderation.syncIndex(ctx, op, s.entityType, applied)
	changeRequests.WithLabelValues(string(s.entityType), outcomeDirect).Inc()
	log.WithFields(log.Fields{
		"actor":  actorID,
		"op":     op,
		"entity": applied.EntityID,
	}).Info("catalog changed directly")

	return &MutationResult{Applied: true, EntityID: applied.EntityID, Record: applied.After}, nil
}

func describeDirect(op entities.OperationType, t entities.EntityType, applied ApplyResult, comment string) string {
	label := applied.EntityID
	switch {
	case applied.After != nil:
		label = applied.After.Label()
	case applied.Before != nil:
		label = applied.Before.Label()
	}
	desc := fmt.Sprintf("%s %s %q", strings.ToLower(string(op)), strings.ToLower(string(t)), label)
	if comment != "" {
		desc += ": " + comment
	}
	return desc
}

// EntityServices bundles one EntityService per catalog type.
type EntityServices struct {
	Person   *EntityService
	Country  *EntityService
	Event    *EntityService
	Document *EntityService
	Source   *EntityService
}

// NewEntityServices builds the services for every catalog type.
func NewEntityServices(
	tx ports.Transactor,
	catalog ports.CatalogStore,
	audit ports.AuditTrail,
	gate *AccessGate,
	applier *ChangeApplier,
	moderation *ModerationService,
) *EntityServices {
	build := func(t entities.EntityType) *EntityService {
		return NewEntityService(t, tx, catalog, audit, gate, applier, moderation)
	}
	return &EntityServices{
		Person:   build(entities.EntityPerson),
		Country:  build(entities.EntityCountry),
		Event:    build(entities.EntityEvent),
		Document: build(entities.EntityDocument),
		Source:   build(entities.EntitySource),
	}
}

// For returns the service for entity type t.
func (e *EntityServices) For(t entities.EntityType) (*EntityService, error) {
	switch t {
	case entities.EntityPerson:
		return e.Person, nil
	case entities.EntityCountry:
		return e.Country, nil
	case entities.EntityEvent:
		return e.Event, nil
	case entities.EntityDocument:
		return e.Document, nil
	case entities.EntitySource:
		return e.Source, nil
	}
	_, err := entities.KindOf(t)
	return nil, err
}
