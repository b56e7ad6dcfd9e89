package ports

import (
	"context"
	"time"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

// Transactor runs a unit of work atomically. Store calls made with the ctx
// passed to fn join the transaction; nested calls reuse it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeRequestStore persists change requests and their review transitions.
type ChangeRequestStore interface {
	// CreateChangeRequest validates and inserts a PENDING request. ID and
	// CreatedAt are assigned when empty.
	CreateChangeRequest(ctx context.Context, cr *entities.ChangeRequest) error

	// FindChangeRequest returns EntityNotFoundError when id is unknown.
	FindChangeRequest(ctx context.Context, id string) (*entities.ChangeRequest, error)

	// ListChangeRequests returns one page, newest first, plus the total
	// number of matching requests.
	ListChangeRequests(ctx context.Context, filter entities.ChangeRequestFilter) ([]entities.ChangeRequest, int, error)

	// MarkApproved moves a PENDING request to APPROVED in a single
	// conditional update. A request that is no longer pending yields a
	// ValidationError; an unknown id yields EntityNotFoundError.
	MarkApproved(ctx context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error)

	// MarkRejected moves a PENDING request to REJECTED under the same rules.
	MarkRejected(ctx context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error)

	// PurgeChangeRequests deletes terminal requests reviewed before cutoff.
	PurgeChangeRequests(ctx context.Context, cutoff time.Time) (int64, error)

	// CountPurgeable counts the requests PurgeChangeRequests would delete.
	CountPurgeable(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByStatus counts requests created since the given time.
	CountByStatus(ctx context.Context, since time.Time) (map[entities.Status]int, error)

	// CountByEntityType counts requests created since the given time.
	CountByEntityType(ctx context.Context, since time.Time) (map[entities.EntityType]int, error)

	// AverageReviewTime averages reviewed_at - created_at over requests
	// reviewed since the given time. Zero when none were reviewed.
	AverageReviewTime(ctx context.Context, since time.Time) (time.Duration, error)
}

// AuditTrail is the append-only log of attributable actions.
type AuditTrail interface {
	// AppendAudit writes one record. ID and CreatedAt are assigned by the store.
	AppendAudit(ctx context.Context, rec *entities.AuditRecord) error

	// ListAudit returns records newest first.
	ListAudit(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditRecord, error)
}

// UserStore persists accounts and their roles.
type UserStore interface {
	// CreateUser inserts a user; a taken username or email yields DuplicateEntityError.
	CreateUser(ctx context.Context, u *entities.User) error

	// FindUserByID returns EntityNotFoundError when id is unknown.
	FindUserByID(ctx context.Context, id string) (*entities.User, error)

	// FindUserByUsername returns EntityNotFoundError when username is unknown.
	FindUserByUsername(ctx context.Context, username string) (*entities.User, error)

	// ListUsers lists users ordered by username.
	ListUsers(ctx context.Context, limit, offset int) ([]entities.User, error)

	// UpdateUserRole changes a user's role.
	UpdateUserRole(ctx context.Context, id string, role entities.Role) error

	// CountUsers returns the number of registered users.
	CountUsers(ctx context.Context) (int, error)
}

// CatalogStore persists the governed catalog records.
type CatalogStore interface {
	// InsertRecord inserts a record of the given type.
	InsertRecord(ctx context.Context, rec *entities.CatalogRecord) error

	// ReplaceRecord overwrites every field of an existing record.
	// Returns EntityNotFoundError when the record does not exist.
	ReplaceRecord(ctx context.Context, rec *entities.CatalogRecord) error

	// DeleteRecord removes a record. Returns EntityNotFoundError when missing.
	DeleteRecord(ctx context.Context, t entities.EntityType, id string) error

	// FindRecord returns EntityNotFoundError when the record does not exist.
	FindRecord(ctx context.Context, t entities.EntityType, id string) (*entities.CatalogRecord, error)

	// ListRecords lists records of a type ordered by label.
	ListRecords(ctx context.Context, t entities.EntityType, limit, offset int) ([]entities.CatalogRecord, error)
}
