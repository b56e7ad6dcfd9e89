package relationaldb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

// InsertRecord inserts a catalog record into its kind's table.
func (r *Repository) InsertRecord(ctx context.Context, rec *entities.CatalogRecord) error {
	kind, err := entities.KindOf(rec.Type)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = generateUUID()
	}
	now := timeNow().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.UpdatedBy == "" {
		rec.UpdatedBy = rec.CreatedBy
	}

	cols := append([]string{"id"}, kind.Fields...)
	cols = append(cols, "created_by", "updated_by", "created_at", "updated_at")

	args := make([]any, 0, len(cols))
	args = append(args, rec.ID)
	args = append(args, fieldArgs(kind, rec.Fields)...)
	args = append(args, nullable(rec.CreatedBy), nullable(rec.UpdatedBy), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		kind.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		var dup *domainErr.DuplicateEntityError
		if errors.As(err, &dup) {
			return &domainErr.DuplicateEntityError{Kind: strings.ToLower(string(rec.Type)), Detail: "id " + rec.ID, Err: err}
		}
		return fmt.Errorf("saving %s: %w", strings.ToLower(string(rec.Type)), err)
	}
	return nil
}

// ReplaceRecord overwrites every field of an existing record.
func (r *Repository) ReplaceRecord(ctx context.Context, rec *entities.CatalogRecord) error {
	kind, err := entities.KindOf(rec.Type)
	if err != nil {
		return err
	}
	rec.UpdatedAt = timeNow().UTC()

	sets := make([]string, 0, len(kind.Fields)+2)
	for _, f := range kind.Fields {
		sets = append(sets, f+" = ?")
	}
	sets = append(sets, "updated_by = ?", "updated_at = ?")

	args := fieldArgs(kind, rec.Fields)
	args = append(args, nullable(rec.UpdatedBy), formatTime(rec.UpdatedAt), rec.ID)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, kind.Table, strings.Join(sets, ", "))
	n, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", strings.ToLower(string(rec.Type)), err)
	}
	if n == 0 {
		return domainErr.NewNotFound(strings.ToLower(string(rec.Type)), rec.ID)
	}
	return nil
}

// DeleteRecord deletes a record by ID.
func (r *Repository) DeleteRecord(ctx context.Context, t entities.EntityType, id string) error {
	kind, err := entities.KindOf(t)
	if err != nil {
		return err
	}
	n, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, kind.Table), id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", strings.ToLower(string(t)), err)
	}
	if n == 0 {
		return domainErr.NewNotFound(strings.ToLower(string(t)), id)
	}
	return nil
}

// FindRecord finds a record by type and ID.
func (r *Repository) FindRecord(ctx context.Context, t entities.EntityType, id string) (*entities.CatalogRecord, error) {
	kind, err := entities.KindOf(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, recordColumns(kind), kind.Table)
	row, err := r.pool.QueryRow(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", strings.ToLower(string(t)), err)
	}
	if row == nil {
		return nil, domainErr.NewNotFound(strings.ToLower(string(t)), id)
	}
	return scanRecord(kind, row)
}

// ListRecords lists records of a type ordered by their label.
func (r *Repository) ListRecords(ctx context.Context, t entities.EntityType, limit, offset int) ([]entities.CatalogRecord, error) {
	kind, err := entities.KindOf(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s ASC, id ASC LIMIT ? OFFSET ?`,
		recordColumns(kind), kind.Table, kind.LabelField)
	rows, err := r.pool.Query(ctx, query, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("querying %s records: %w", strings.ToLower(string(t)), err)
	}

	result := make([]entities.CatalogRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := scanRecord(kind, row)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, nil
}

func recordColumns(kind entities.CatalogKind) string {
	cols := append([]string{"id"}, kind.Fields...)
	cols = append(cols, "created_by", "updated_by", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

// fieldArgs orders field values by column; missing fields are NULL.
func fieldArgs(kind entities.CatalogKind, fields map[string]any) []any {
	args := make([]any, 0, len(kind.Fields))
	for _, f := range kind.Fields {
		v, ok := fields[f]
		if !ok || v == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, nullable(asString(v)))
	}
	return args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanRecord(kind entities.CatalogKind, row dbpool.Row) (*entities.CatalogRecord, error) {
	rec := &entities.CatalogRecord{
		ID:        asString(row["id"]),
		Type:      kind.Type,
		Fields:    make(map[string]any, len(kind.Fields)),
		CreatedBy: asString(row["created_by"]),
		UpdatedBy: asString(row["updated_by"]),
	}
	for _, f := range kind.Fields {
		if v := row[f]; v != nil {
			rec.Fields[f] = asString(v)
		}
	}

	var err error
	if rec.CreatedAt, err = asTime(row["created_at"]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = asTime(row["updated_at"]); err != nil {
		return nil, err
	}
	return rec, nil
}
