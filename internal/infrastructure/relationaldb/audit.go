package relationaldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

// AppendAudit writes one audit record and fills in its ID and CreatedAt.
func (r *Repository) AppendAudit(ctx context.Context, rec *entities.AuditRecord) error {
	if strings.TrimSpace(rec.ActionType) == "" {
		return domainErr.NewValidationError("action_type", "is required")
	}

	oldValue, err := encodeJSON(rec.OldValue)
	if err != nil {
		return err
	}
	newValue, err := encodeJSON(rec.NewValue)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = timeNow().UTC()
	}

	rows, err := r.pool.CallFunction(ctx, routineAppendAudit,
		nullable(rec.UserID),
		rec.ActionType,
		nullable(rec.EntityType),
		nullable(rec.EntityID),
		oldValue,
		newValue,
		nullable(rec.Description),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("logging action %s: %w", rec.ActionType, err)
	}
	if len(rows) > 0 {
		rec.ID = asInt64(rows[0]["id"])
	}
	return nil
}

// ListAudit returns audit records newest first.
func (r *Repository) ListAudit(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditRecord, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}

	result := make([]entities.AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := scanAuditRecord(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func scanAuditRecord(row dbpool.Row) (entities.AuditRecord, error) {
	rec := entities.AuditRecord{
		ID:          asInt64(row["id"]),
		UserID:      asString(row["user_id"]),
		ActionType:  asString(row["action_type"]),
		EntityType:  asString(row["entity_type"]),
		EntityID:    asString(row["entity_id"]),
		Description: asString(row["description"]),
	}

	var err error
	if rec.OldValue, err = decodeJSON(row["old_value"]); err != nil {
		return rec, fmt.Errorf("audit record %d old value: %w", rec.ID, err)
	}
	if rec.NewValue, err = decodeJSON(row["new_value"]); err != nil {
		return rec, fmt.Errorf("audit record %d new value: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = asTime(row["created_at"]); err != nil {
		return rec, err
	}
	return rec, nil
}
