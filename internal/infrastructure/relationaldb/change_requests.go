package relationaldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

// CreateChangeRequest validates and inserts a PENDING request.
func (r *Repository) CreateChangeRequest(ctx context.Context, cr *entities.ChangeRequest) error {
	if cr.Status == "" {
		cr.Status = entities.StatusPending
	}
	if cr.Status != entities.StatusPending {
		return domainErr.NewValidationError("status", "new change requests must be PENDING")
	}
	if err := cr.Validate(); err != nil {
		return err
	}

	if cr.ID == "" {
		cr.ID = generateUUID()
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = timeNow().UTC()
	}

	payload, err := encodeJSON(cr.Payload)
	if err != nil {
		return err
	}
	prior, err := encodeJSON(cr.PriorSnapshot)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO change_requests (id, entity_type, operation_type, entity_id, requester_id,
			payload, prior_snapshot, request_comment, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.pool.Exec(ctx, query,
		cr.ID,
		string(cr.EntityType),
		string(cr.Operation),
		nullable(cr.EntityID),
		cr.RequesterID,
		payload,
		prior,
		nullable(cr.RequestComment),
		string(cr.Status),
		formatTime(cr.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving change request: %w", err)
	}
	return nil
}

// FindChangeRequest finds a change request by its ID.
func (r *Repository) FindChangeRequest(ctx context.Context, id string) (*entities.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = ?`
	row, err := r.pool.QueryRow(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying change request: %w", err)
	}
	if row == nil {
		return nil, domainErr.NewNotFound("change request", id)
	}
	return scanChangeRequest(row)
}

// ListChangeRequests returns one page of matching requests, newest first,
// and the total number of matches.
func (r *Repository) ListChangeRequests(ctx context.Context, filter entities.ChangeRequestFilter) ([]entities.ChangeRequest, int, error) {
	var where []string
	var args []any
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	countRow, err := r.pool.QueryRow(ctx, `SELECT COUNT(*) AS n FROM change_requests`+clause, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting change requests: %w", err)
	}

	query := `SELECT ` + changeRequestColumns + ` FROM change_requests` + clause +
		` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := r.pool.Query(ctx, query, append(args, clampLimit(filter.Limit), max(filter.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying change requests: %w", err)
	}

	result := make([]entities.ChangeRequest, 0, len(rows))
	for _, row := range rows {
		cr, err := scanChangeRequest(row)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *cr)
	}
	return result, int(asInt64(countRow["n"])), nil
}

// MarkApproved moves a PENDING request to APPROVED.
func (r *Repository) MarkApproved(ctx context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error) {
	return r.markReviewed(ctx, id, entities.StatusApproved, reviewerID, comment)
}

// MarkRejected moves a PENDING request to REJECTED. A comment is required.
func (r *Repository) MarkRejected(ctx context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, domainErr.NewValidationError("comment", "is required to reject a request")
	}
	return r.markReviewed(ctx, id, entities.StatusRejected, reviewerID, comment)
}

func (r *Repository) markReviewed(ctx context.Context, id string, status entities.Status, reviewerID, comment string) (*entities.ChangeRequest, error) {
	if reviewerID == "" {
		return nil, domainErr.NewValidationError("reviewer_id", "is required")
	}

	var reviewed *entities.ChangeRequest
	err := r.pool.WithTransaction(ctx, func(ctx context.Context) error {
		rows, err := r.pool.CallFunction(ctx, routineMarkReviewed,
			string(status),
			reviewerID,
			nullable(strings.TrimSpace(comment)),
			formatTime(timeNow()),
			id,
		)
		if err != nil {
			return fmt.Errorf("marking change request %s: %w", strings.ToLower(string(status)), err)
		}
		if len(rows) == 0 {
			current, err := r.FindChangeRequest(ctx, id)
			if err != nil {
				return err
			}
			return domainErr.NewValidationError("status", "change request %s already reviewed (%s)", id, current.Status)
		}
		reviewed, err = scanChangeRequest(rows[0])
		return err
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// PurgeChangeRequests deletes APPROVED and REJECTED requests reviewed
// before cutoff. PENDING requests are never deleted.
func (r *Repository) PurgeChangeRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := r.pool.CallProcedure(ctx, routinePurge, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging change requests: %w", err)
	}
	return affected(rows), nil
}

// CountPurgeable counts the requests PurgeChangeRequests would delete.
func (r *Repository) CountPurgeable(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := r.pool.CallFunction(ctx, routineCountPurgeable, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("counting purgeable requests: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["n"]), nil
}

// CountByStatus counts requests created since the given time.
func (r *Repository) CountByStatus(ctx context.Context, since time.Time) (map[entities.Status]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status AS k, COUNT(*) AS n FROM change_requests WHERE created_at >= ? GROUP BY status`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("counting requests by status: %w", err)
	}
	counts := make(map[entities.Status]int, len(rows))
	for _, row := range rows {
		counts[entities.Status(asString(row["k"]))] = int(asInt64(row["n"]))
	}
	return counts, nil
}

// CountByEntityType counts requests created since the given time.
func (r *Repository) CountByEntityType(ctx context.Context, since time.Time) (map[entities.EntityType]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entity_type AS k, COUNT(*) AS n FROM change_requests WHERE created_at >= ? GROUP BY entity_type`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("counting requests by entity type: %w", err)
	}
	counts := make(map[entities.EntityType]int, len(rows))
	for _, row := range rows {
		counts[entities.EntityType(asString(row["k"]))] = int(asInt64(row["n"]))
	}
	return counts, nil
}

// AverageReviewTime averages the time from submission to review for
// requests reviewed since the given time.
func (r *Repository) AverageReviewTime(ctx context.Context, since time.Time) (time.Duration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT created_at, reviewed_at FROM change_requests WHERE reviewed_at IS NOT NULL AND reviewed_at >= ?`,
		formatTime(since))
	if err != nil {
		return 0, fmt.Errorf("querying review times: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var total time.Duration
	for _, row := range rows {
		created, err := asTime(row["created_at"])
		if err != nil {
			return 0, err
		}
		reviewed, err := asTime(row["reviewed_at"])
		if err != nil {
			return 0, err
		}
		total += reviewed.Sub(created)
	}
	return total / time.Duration(len(rows)), nil
}

func scanChangeRequest(row dbpool.Row) (*entities.ChangeRequest, error) {
	cr := &entities.ChangeRequest{
		ID:             asString(row["id"]),
		EntityType:     entities.EntityType(asString(row["entity_type"])),
		Operation:      entities.OperationType(asString(row["operation_type"])),
		EntityID:       asString(row["entity_id"]),
		RequesterID:    asString(row["requester_id"]),
		RequestComment: asString(row["request_comment"]),
		Status:         entities.Status(asString(row["status"])),
		ReviewerID:     asString(row["reviewer_id"]),
		ReviewComment:  asString(row["review_comment"]),
	}

	var err error
	if cr.Payload, err = decodeJSON(row["payload"]); err != nil {
		return nil, fmt.Errorf("change request %s payload: %w", cr.ID, err)
	}
	if cr.PriorSnapshot, err = decodeJSON(row["prior_snapshot"]); err != nil {
		return nil, fmt.Errorf("change request %s snapshot: %w", cr.ID, err)
	}
	if cr.CreatedAt, err = asTime(row["created_at"]); err != nil {
		return nil, err
	}
	if row["reviewed_at"] != nil {
		reviewed, err := asTime(row["reviewed_at"])
		if err != nil {
			return nil, err
		}
		cr.ReviewedAt = &reviewed
	}
	return cr, nil
}

func affected(rows []dbpool.Row) int64 {
	if len(rows) == 0 {
		return 0
	}
	return asInt64(rows[0]["rows_affected"])
}
