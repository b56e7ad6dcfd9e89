package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// ApplyCommand is one change to carry out on the catalog.
type ApplyCommand struct {
	EntityType        entities.EntityType
	Operation         entities.OperationType
	EntityID          string
	Payload           map[string]any
	ActingModeratorID string
}

// ApplyResult reports the affected record. Before is nil for CREATE and
// After is nil for DELETE.
type ApplyResult struct {
	EntityID string
	Before   *entities.CatalogRecord
	After    *entities.CatalogRecord
}

// applyFunc carries out one operation for one catalog kind.
type applyFunc func(ctx context.Context, kind entities.CatalogKind, cmd ApplyCommand) (ApplyResult, error)

// ChangeApplier performs catalog mutations for approved requests and for
// privileged direct edits. Each entity type resolves to its catalog kind,
// which supplies the date fields and the payload validator.
type ChangeApplier struct {
	catalog ports.CatalogStore
	gate    *AccessGate
	ops     map[entities.OperationType]applyFunc
}

// NewChangeApplier creates a new ChangeApplier.
func NewChangeApplier(catalog ports.CatalogStore, gate *AccessGate) *ChangeApplier {
	a := &ChangeApplier{catalog: catalog, gate: gate}
	a.ops = map[entities.OperationType]applyFunc{
		entities.OpCreate: a.create,
		entities.OpUpdate: a.update,
		entities.OpDelete: a.delete,
	}
	return a
}

// Apply dispatches cmd to the routine for its entity type and operation.
// Store calls join any transaction carried by ctx.
func (a *ChangeApplier) Apply(ctx context.Context, cmd ApplyCommand) (ApplyResult, error) {
	kind, err := entities.KindOf(cmd.EntityType)
	if err != nil {
		return ApplyResult{}, err
	}
	op, ok := a.ops[cmd.Operation]
	if !ok {
		return ApplyResult{}, domainErr.NewValidationError("operation_type", "unknown operation %q", cmd.Operation)
	}
	return op(ctx, kind, cmd)
}

func (a *ChangeApplier) create(ctx context.Context, kind entities.CatalogKind, cmd ApplyCommand) (ApplyResult, error) {
	fields, err := entities.NormalizePayload(kind.Type, cmd.Payload)
	if err != nil {
		return ApplyResult{}, err
	}

	rec := &entities.CatalogRecord{
		Type:      kind.Type,
		Fields:    fields,
		CreatedBy: cmd.ActingModeratorID,
		UpdatedBy: cmd.ActingModeratorID,
	}
	if err := a.catalog.InsertRecord(ctx, rec); err != nil {
		return ApplyResult{}, fmt.Errorf("creating %s: %w", strings.ToLower(string(kind.Type)), err)
	}
	return ApplyResult{EntityID: rec.ID, After: rec}, nil
}

func (a *ChangeApplier) update(ctx context.Context, kind entities.CatalogKind, cmd ApplyCommand) (ApplyResult, error) {
	if cmd.EntityID == "" {
		return ApplyResult{}, domainErr.NewValidationError("entity_id", "is required for UPDATE")
	}
	fields, err := entities.NormalizePayload(kind.Type, cmd.Payload)
	if err != nil {
		return ApplyResult{}, err
	}

	before, err := a.catalog.FindRecord(ctx, kind.Type, cmd.EntityID)
	if err != nil {
		return ApplyResult{}, err
	}

	// The payload replaces the record wholesale.
	rec := &entities.CatalogRecord{
		ID:        cmd.EntityID,
		Type:      kind.Type,
		Fields:    fields,
		CreatedBy: before.CreatedBy,
		UpdatedBy: cmd.ActingModeratorID,
		CreatedAt: before.CreatedAt,
	}
	if err := a.catalog.ReplaceRecord(ctx, rec); err != nil {
		return ApplyResult{}, fmt.Errorf("updating %s %s: %w", strings.ToLower(string(kind.Type)), cmd.EntityID, err)
	}
	return ApplyResult{EntityID: rec.ID, Before: before, After: rec}, nil
}

func (a *ChangeApplier) delete(ctx context.Context, kind entities.CatalogKind, cmd ApplyCommand) (ApplyResult, error) {
	if cmd.EntityID == "" {
		return ApplyResult{}, domainErr.NewValidationError("entity_id", "is required for DELETE")
	}
	// Deleting needs a higher bar than creating or updating.
	if err := a.gate.RequirePermission(ctx, cmd.ActingModeratorID, entities.RoleAdmin); err != nil {
		return ApplyResult{}, err
	}

	before, err := a.catalog.FindRecord(ctx, kind.Type, cmd.EntityID)
	if err != nil {
		return ApplyResult{}, err
	}
	if err := a.catalog.DeleteRecord(ctx, kind.Type, cmd.EntityID); err != nil {
		return ApplyResult{}, fmt.Errorf("deleting %s %s: %w", strings.ToLower(string(kind.Type)), cmd.EntityID, err)
	}
	return ApplyResult{EntityID: cmd.EntityID, Before: before}, nil
}

// snapshotOf returns the audit form of rec, or nil.
func snapshotOf(rec *entities.CatalogRecord) map[string]any {
	if rec == nil {
		return nil
	}
	return rec.Snapshot()
}
