package mocks

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

type txKey struct{}

// RelationalDB is an in-memory implementation of the store ports
// (ChangeRequestStore, AuditTrail, UserStore, CatalogStore and Transactor).
// WithTransaction serializes units of work and restores the previous state
// when fn fails, so rollback behaves like the real store.
type RelationalDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	Users    map[string]entities.User
	Requests map[string]entities.ChangeRequest
	Audit    []entities.AuditRecord
	Records  map[entities.EntityType]map[string]entities.CatalogRecord

	// Err is returned by every method.
	Err error
	// CatalogWriteErr is returned by InsertRecord, ReplaceRecord and DeleteRecord.
	CatalogWriteErr error

	// Call tracking
	Transactions int
	Rollbacks    int
	PurgeCalls   int
	Now          func() time.Time
}

// NewRelationalDB creates an empty mock store.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		Users:    make(map[string]entities.User),
		Requests: make(map[string]entities.ChangeRequest),
		Records:  make(map[entities.EntityType]map[string]entities.CatalogRecord),
		Now:      time.Now,
	}
}

// AddUser registers a user directly and returns it.
func (m *RelationalDB) AddUser(username string, role entities.Role) entities.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := entities.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    m.Now().UTC(),
	}
	m.Users[u.ID] = u
	return u
}

// AuditActions returns the action types logged so far, oldest first.
func (m *RelationalDB) AuditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Audit))
	for i, rec := range m.Audit {
		out[i] = rec.ActionType
	}
	return out
}

// WithTransaction runs fn; nested calls join the outer unit of work.
func (m *RelationalDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	if m.Err != nil {
		return m.Err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.Transactions++
	snapshot := m.snapshot()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.restore(snapshot)
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}
	return nil
}

type state struct {
	users    map[string]entities.User
	requests map[string]entities.ChangeRequest
	audit    []entities.AuditRecord
	records  map[entities.EntityType]map[string]entities.CatalogRecord
}

func (m *RelationalDB) snapshot() state {
	s := state{
		users:    maps.Clone(m.Users),
		requests: maps.Clone(m.Requests),
		audit:    append([]entities.AuditRecord(nil), m.Audit...),
		records:  make(map[entities.EntityType]map[string]entities.CatalogRecord, len(m.Records)),
	}
	for t, recs := range m.Records {
		s.records[t] = maps.Clone(recs)
	}
	return s
}

func (m *RelationalDB) restore(s state) {
	m.Users = s.users
	m.Requests = s.requests
	m.Audit = s.audit
	m.Records = s.records
}

// Change request methods.

// CreateChangeRequest validates and stores a PENDING request.
func (m *RelationalDB) CreateChangeRequest(_ context.Context, cr *entities.ChangeRequest) error {
	if m.Err != nil {
		return m.Err
	}
	if cr.Status == "" {
		cr.Status = entities.StatusPending
	}
	if err := cr.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cr.ID == "" {
		cr.ID = uuid.New().String()
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = m.Now().UTC()
	}
	m.Requests[cr.ID] = *cr
	return nil
}

// FindChangeRequest finds a change request by its ID.
func (m *RelationalDB) FindChangeRequest(_ context.Context, id string) (*entities.ChangeRequest, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.Requests[id]
	if !ok {
		return nil, domainErr.NewNotFound("change request", id)
	}
	return &cr, nil
}

// ListChangeRequests filters, sorts newest first and pages.
func (m *RelationalDB) ListChangeRequests(_ context.Context, filter entities.ChangeRequestFilter) ([]entities.ChangeRequest, int, error) {
	if m.Err != nil {
		return nil, 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []entities.ChangeRequest
	for _, cr := range m.Requests {
		if filter.EntityType != "" && cr.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && cr.Status != filter.Status {
			continue
		}
		if filter.RequesterID != "" && cr.RequesterID != filter.RequesterID {
			continue
		}
		matched = append(matched, cr)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	end := min(start+limit, total)
	return matched[start:end], total, nil
}

// MarkApproved moves a PENDING request to APPROVED.
func (m *RelationalDB) MarkApproved(_ context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error) {
	return m.markReviewed(id, entities.StatusApproved, reviewerID, comment)
}

// MarkRejected moves a PENDING request to REJECTED.
func (m *RelationalDB) MarkRejected(_ context.Context, id, reviewerID, comment string) (*entities.ChangeRequest, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, domainErr.NewValidationError("comment", "is required to reject a request")
	}
	return m.markReviewed(id, entities.StatusRejected, reviewerID, comment)
}

func (m *RelationalDB) markReviewed(id string, status entities.Status, reviewerID, comment string) (*entities.ChangeRequest, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cr, ok := m.Requests[id]
	if !ok {
		return nil, domainErr.NewNotFound("change request", id)
	}
	if cr.Status != entities.StatusPending {
		return nil, domainErr.NewValidationError("status", "change request %s already reviewed (%s)", id, cr.Status)
	}
	now := m.Now().UTC()
	cr.Status = status
	cr.ReviewerID = reviewerID
	cr.ReviewComment = strings.TrimSpace(comment)
	cr.ReviewedAt = &now
	m.Requests[id] = cr
	return &cr, nil
}

// PurgeChangeRequests deletes terminal requests reviewed before cutoff.
func (m *RelationalDB) PurgeChangeRequests(_ context.Context, cutoff time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PurgeCalls++

	var n int64
	for id, cr := range m.Requests {
		if purgeable(cr, cutoff) {
			delete(m.Requests, id)
			n++
		}
	}
	return n, nil
}

// CountPurgeable counts the requests PurgeChangeRequests would delete.
func (m *RelationalDB) CountPurgeable(_ context.Context, cutoff time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, cr := range m.Requests {
		if purgeable(cr, cutoff) {
			n++
		}
	}
	return n, nil
}

func purgeable(cr entities.ChangeRequest, cutoff time.Time) bool {
	return cr.Status.IsTerminal() && cr.ReviewedAt != nil && cr.ReviewedAt.Before(cutoff)
}

// CountByStatus counts requests created since the given time.
func (m *RelationalDB) CountByStatus(_ context.Context, since time.Time) (map[entities.Status]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[entities.Status]int)
	for _, cr := range m.Requests {
		if !cr.CreatedAt.Before(since) {
			counts[cr.Status]++
		}
	}
	return counts, nil
}

// CountByEntityType counts requests created since the given time.
func (m *RelationalDB) CountByEntityType(_ context.Context, since time.Time) (map[entities.EntityType]int, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[entities.EntityType]int)
	for _, cr := range m.Requests {
		if !cr.CreatedAt.Before(since) {
			counts[cr.EntityType]++
		}
	}
	return counts, nil
}

// AverageReviewTime averages review durations for requests reviewed since.
func (m *RelationalDB) AverageReviewTime(_ context.Context, since time.Time) (time.Duration, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var total time.Duration
	n := 0
	for _, cr := range m.Requests {
		if cr.ReviewedAt != nil && !cr.ReviewedAt.Before(since) {
			total += cr.ReviewedAt.Sub(cr.CreatedAt)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / time.Duration(n), nil
}

// Audit methods.

// AppendAudit appends a record.
func (m *RelationalDB) AppendAudit(_ context.Context, rec *entities.AuditRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.Audit) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.Now().UTC()
	}
	m.Audit = append(m.Audit, *rec)
	return nil
}

// ListAudit returns matching records newest first.
func (m *RelationalDB) ListAudit(_ context.Context, filter entities.AuditFilter) ([]entities.AuditRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.AuditRecord
	for i := len(m.Audit) - 1; i >= 0; i-- {
		rec := m.Audit[i]
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.ActionType != "" && rec.ActionType != filter.ActionType {
			continue
		}
		if filter.EntityType != "" && rec.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && rec.EntityID != filter.EntityID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// User methods.

// CreateUser stores a user, rejecting taken usernames and emails.
func (m *RelationalDB) CreateUser(_ context.Context, u *entities.User) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return &domainErr.DuplicateEntityError{Kind: "user", Detail: u.Username}
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.Now().UTC()
	}
	m.Users[u.ID] = *u
	return nil
}

// FindUserByID finds a user by ID.
func (m *RelationalDB) FindUserByID(_ context.Context, id string) (*entities.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, domainErr.NewNotFound("user", id)
	}
	return &u, nil
}

// FindUserByUsername finds a user by username.
func (m *RelationalDB) FindUserByUsername(_ context.Context, username string) (*entities.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, domainErr.NewNotFound("user", username)
}

// ListUsers lists users ordered by username.
func (m *RelationalDB) ListUsers(_ context.Context, limit, offset int) ([]entities.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.User, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	start := min(max(offset, 0), len(out))
	end := len(out)
	if limit > 0 {
		end = min(start+limit, len(out))
	}
	return out[start:end], nil
}

// UpdateUserRole changes a user's role.
func (m *RelationalDB) UpdateUserRole(_ context.Context, id string, role entities.Role) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return domainErr.NewNotFound("user", id)
	}
	u.Role = role
	m.Users[id] = u
	return nil
}

// CountUsers returns the number of users.
func (m *RelationalDB) CountUsers(_ context.Context) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users), nil
}

// Catalog methods.

// InsertRecord stores a catalog record.
func (m *RelationalDB) InsertRecord(_ context.Context, rec *entities.CatalogRecord) error {
	if err := m.catalogWriteErr(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if m.Records[rec.Type] == nil {
		m.Records[rec.Type] = make(map[string]entities.CatalogRecord)
	}
	if _, exists := m.Records[rec.Type][rec.ID]; exists {
		return &domainErr.DuplicateEntityError{Kind: strings.ToLower(string(rec.Type)), Detail: rec.ID}
	}
	now := m.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.Records[rec.Type][rec.ID] = *rec
	return nil
}

// ReplaceRecord overwrites an existing record.
func (m *RelationalDB) ReplaceRecord(_ context.Context, rec *entities.CatalogRecord) error {
	if err := m.catalogWriteErr(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Records[rec.Type][rec.ID]
	if !ok {
		return domainErr.NewNotFound(strings.ToLower(string(rec.Type)), rec.ID)
	}
	rec.CreatedAt = existing.CreatedAt
	rec.CreatedBy = existing.CreatedBy
	rec.UpdatedAt = m.Now().UTC()
	m.Records[rec.Type][rec.ID] = *rec
	return nil
}

// DeleteRecord removes a record.
func (m *RelationalDB) DeleteRecord(_ context.Context, t entities.EntityType, id string) error {
	if err := m.catalogWriteErr(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Records[t][id]; !ok {
		return domainErr.NewNotFound(strings.ToLower(string(t)), id)
	}
	delete(m.Records[t], id)
	return nil
}

// FindRecord finds a record.
func (m *RelationalDB) FindRecord(_ context.Context, t entities.EntityType, id string) (*entities.CatalogRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[t][id]
	if !ok {
		return nil, domainErr.NewNotFound(strings.ToLower(string(t)), id)
	}
	return &rec, nil
}

// ListRecords lists records of a type ordered by label.
func (m *RelationalDB) ListRecords(_ context.Context, t entities.EntityType, limit, offset int) ([]entities.CatalogRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.CatalogRecord, 0, len(m.Records[t]))
	for _, rec := range m.Records[t] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	start := min(max(offset, 0), len(out))
	end := len(out)
	if limit > 0 {
		end = min(start+limit, len(out))
	}
	return out[start:end], nil
}

// RecordCount returns how many records of t are stored.
func (m *RelationalDB) RecordCount(t entities.EntityType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records[t])
}

func (m *RelationalDB) catalogWriteErr() error {
	if m.Err != nil {
		return m.Err
	}
	if m.CatalogWriteErr != nil {
		return fmt.Errorf("catalog write: %w", m.CatalogWriteErr)
	}
	return nil
}
