package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

var timeNow = time.Now

// ModerationPolicy holds the review workflow rules.
type ModerationPolicy struct {
	// MinRejectComment is the minimum trimmed length of a rejection comment.
	MinRejectComment int
	// RetentionFloorDays is the youngest age PurgeOld accepts.
	RetentionFloorDays int
	// Atomic runs approve and apply in one transaction. When false the
	// approval commits first and a failed apply yields PartialApprovalError.
	Atomic bool
}

// DefaultModerationPolicy returns the stock workflow rules.
func DefaultModerationPolicy() ModerationPolicy {
	return ModerationPolicy{MinRejectComment: 10, RetentionFloorDays: 30, Atomic: true}
}

// SubmitParams describes a proposed catalog change.
type SubmitParams struct {
	RequesterID string
	EntityType  entities.EntityType
	Operation   entities.OperationType
	EntityID    string
	Payload     map[string]any
	Comment     string
}

// ApprovalResult is the outcome of Approve.
type ApprovalResult struct {
	Request *entities.ChangeRequest `json:"request"`
	// EntityID is the affected catalog record. For CREATE it is the new id.
	EntityID string `json:"entity_id,omitempty"`
}

// Statistics summarizes review activity over a period.
type Statistics struct {
	PeriodDays        int                         `json:"period_days"`
	Since             time.Time                   `json:"since"`
	ByStatus          map[entities.Status]int     `json:"by_status"`
	ByEntityType      map[entities.EntityType]int `json:"by_entity_type"`
	AverageReviewTime time.Duration               `json:"average_review_time"`
	PendingTotal      int                         `json:"pending_total"`
	// PurgeableCount is only reported to admins.
	PurgeableCount *int64 `json:"purgeable_count,omitempty"`
}

// PurgeResult reports a retention purge.
type PurgeResult struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// ModerationService drives change requests from PENDING to a terminal
// state. It holds no request state of its own; every decision reads the store.
type ModerationService struct {
	tx         ports.Transactor
	requests   ports.ChangeRequestStore
	audit      ports.AuditTrail
	catalog    ports.CatalogStore
	gate       *AccessGate
	applier    *ChangeApplier
	similarity *SimilarityService
	policy     ModerationPolicy
}

// NewModerationService creates a new ModerationService.
func NewModerationService(
	tx ports.Transactor,
	requests ports.ChangeRequestStore,
	audit ports.AuditTrail,
	catalog ports.CatalogStore,
	gate *AccessGate,
	applier *ChangeApplier,
	policy ModerationPolicy,
) *ModerationService {
	return &ModerationService{
		tx:       tx,
		requests: requests,
		audit:    audit,
		catalog:  catalog,
		gate:     gate,
		applier:  applier,
		policy:   policy,
	}
}

// WithSimilarity enables index maintenance on approval and SimilarEntities.
func (s *ModerationService) WithSimilarity(similarity *SimilarityService) *ModerationService {
	s.similarity = similarity
	return s
}

// Policy returns the workflow rules in force.
func (s *ModerationService) Policy() ModerationPolicy {
	return s.policy
}

// Submit records a PENDING change request and its audit entry in one
// transaction. Any registered user may submit.
func (s *ModerationService) Submit(ctx context.Context, p SubmitParams) (*entities.ChangeRequest, error) {
	if _, err := s.gate.RoleOf(ctx, p.RequesterID); err != nil {
		return nil, err
	}

	cr := &entities.ChangeRequest{
		EntityType:     p.EntityType,
		Operation:      p.Operation,
		EntityID:       strings.TrimSpace(p.EntityID),
		RequesterID:    p.RequesterID,
		Payload:        p.Payload,
		RequestComment: strings.TrimSpace(p.Comment),
		Status:         entities.StatusPending,
	}
	if err := cr.Validate(); err != nil {
		return nil, err
	}
	if cr.Operation != entities.OpDelete {
		normalized, err := entities.NormalizePayload(cr.EntityType, cr.Payload)
		if err != nil {
			return nil, err
		}
		cr.Payload = normalized
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if cr.Operation != entities.OpCreate {
			prior, err := s.catalog.FindRecord(ctx, cr.EntityType, cr.EntityID)
			if err != nil {
				return err
			}
			cr.PriorSnapshot = prior.Snapshot()
		}

		if err := s.requests.CreateChangeRequest(ctx, cr); err != nil {
			return fmt.Errorf("creating change request: %w", err)
		}

		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      cr.RequesterID,
			ActionType:  entities.RequestedAction(cr.EntityType, cr.Operation),
			EntityType:  string(cr.EntityType),
			EntityID:    cr.EntityID,
			OldValue:    cr.PriorSnapshot,
			NewValue:    cr.Payload,
			Description: fmt.Sprintf("change request %s: %s", cr.ID, cr.Summary()),
		})
	})
	if err != nil {
		return nil, err
	}

	changeRequests.WithLabelValues(string(cr.EntityType), outcomeSubmitted).Inc()
	log.WithFields(log.Fields{
		"request":   cr.ID,
		"requester": cr.RequesterID,
		"change":    cr.Summary(),
	}).Info("change request submitted")
	return cr, nil
}

// ListPending lists requests for review. The status filter defaults to PENDING.
func (s *ModerationService) ListPending(ctx context.Context, moderatorID string, filter entities.ChangeRequestFilter) ([]entities.ChangeRequest, int, error) {
	if err := s.gate.RequirePermission(ctx, moderatorID, entities.RoleModerator); err != nil {
		return nil, 0, err
	}
	if filter.Status == "" {
		filter.Status = entities.StatusPending
	}
	return s.requests.ListChangeRequests(ctx, filter)
}

// MyRequests lists the requests submitted by userID.
func (s *ModerationService) MyRequests(ctx context.Context, userID string, filter entities.ChangeRequestFilter) ([]entities.ChangeRequest, int, error) {
	if _, err := s.gate.RoleOf(ctx, userID); err != nil {
		return nil, 0, err
	}
	filter.RequesterID = userID
	return s.requests.ListChangeRequests(ctx, filter)
}

// Get returns a request. Moderators may read any request, other users
// only their own.
func (s *ModerationService) Get(ctx context.Context, actorID, requestID string) (*entities.ChangeRequest, error) {
	role, err := s.gate.RoleOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	cr, err := s.requests.FindChangeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cr.RequesterID != actorID && !role.AtLeast(entities.RoleModerator) {
		return nil, &domainErr.AuthorizationError{UserID: actorID, Required: entities.RoleModerator.String(), Actual: role.String()}
	}
	return cr, nil
}

// Approve marks a pending request APPROVED and applies its change.
func (s *ModerationService) Approve(ctx context.Context, moderatorID, requestID, comment string) (*ApprovalResult, error) {
	if err := s.gate.RequirePermission(ctx, moderatorID, entities.RoleModerator); err != nil {
		return nil, err
	}

	cr, err := s.requests.FindChangeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cr.Status.IsTerminal() {
		return nil, domainErr.NewValidationError("status", "change request %s already reviewed (%s)", cr.ID, cr.Status)
	}
	if cr.Operation == entities.OpDelete {
		if err := s.gate.RequirePermission(ctx, moderatorID, entities.RoleAdmin); err != nil {
			return nil, err
		}
	}

	comment = strings.TrimSpace(comment)
	var result *ApprovalResult
	if s.policy.Atomic {
		result, err = s.approveAtomic(ctx, cr, moderatorID, comment)
	} else {
		result, err = s.approveTwoStep(ctx, cr, moderatorID, comment)
	}
	if err != nil {
		return result, err
	}

	changeRequests.WithLabelValues(string(cr.EntityType), outcomeApproved).Inc()
	log.WithFields(log.Fields{
		"request":   cr.ID,
		"moderator": moderatorID,
		"entity":    result.EntityID,
	}).Info("change request approved")
	return result, nil
}

func (s *ModerationService) approveAtomic(ctx context.Context, cr *entities.ChangeRequest, moderatorID, comment string) (*ApprovalResult, error) {
	var (
		result  *ApprovalResult
		applied ApplyResult
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		approved, err := s.requests.MarkApproved(ctx, cr.ID, moderatorID, comment)
		if err != nil {
			return err
		}
		applied, err = s.applyAndRecord(ctx, approved, moderatorID)
		if err != nil {
			return err
		}
		result = &ApprovalResult{Request: approved, EntityID: applied.EntityID}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("request", cr.ID).Warn("approval rolled back")
		return nil, err
	}

	s.syncIndex(ctx, cr.Operation, cr.EntityType, applied)
	return result, nil
}

func (s *ModerationService) approveTwoStep(ctx context.Context, cr *entities.ChangeRequest, moderatorID, comment string) (*ApprovalResult, error) {
	var approved *entities.ChangeRequest
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		approved, err = s.requests.MarkApproved(ctx, cr.ID, moderatorID, comment)
		return err
	})
	if err != nil {
		return nil, err
	}

	var applied ApplyResult
	applyErr := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.applyAndRecord(ctx, approved, moderatorID)
		return err
	})
	if applyErr != nil {
		changeRequests.WithLabelValues(string(cr.EntityType), outcomeApplyFailed).Inc()
		log.WithError(applyErr).WithFields(log.Fields{
			"request":   cr.ID,
			"moderator": moderatorID,
		}).Error("approval recorded but change not applied")

		if err := s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      moderatorID,
			ActionType:  entities.ReviewAction(cr.EntityType, entities.ActionApplyFailed),
			EntityType:  string(cr.EntityType),
			EntityID:    cr.EntityID,
			NewValue:    map[string]any{"change_request_id": cr.ID, "error": applyErr.Error()},
			Description: fmt.Sprintf("change request %s approved but not applied", cr.ID),
		}); err != nil {
			log.WithError(err).WithField("request", cr.ID).Error("recording apply failure")
		}
		return &ApprovalResult{Request: approved}, &domainErr.PartialApprovalError{RequestID: cr.ID, Err: applyErr}
	}

	s.syncIndex(ctx, cr.Operation, cr.EntityType, applied)
	return &ApprovalResult{Request: approved, EntityID: applied.EntityID}, nil
}

// applyAndRecord applies an approved request and writes the approval audit
// record. It must run inside a transaction.
func (s *ModerationService) applyAndRecord(ctx context.Context, cr *entities.ChangeRequest, moderatorID string) (ApplyResult, error) {
	applied, err := s.applier.Apply(ctx, ApplyCommand{
		EntityType:        cr.EntityType,
		Operation:         cr.Operation,
		EntityID:          cr.EntityID,
		Payload:           cr.Payload,
		ActingModeratorID: moderatorID,
	})
	if err != nil {
		return ApplyResult{}, err
	}

	err = s.audit.AppendAudit(ctx, &entities.AuditRecord{
		UserID:      moderatorID,
		ActionType:  entities.ReviewAction(cr.EntityType, entities.ActionApproved),
		EntityType:  string(cr.EntityType),
		EntityID:    applied.EntityID,
		OldValue:    snapshotOf(applied.Before),
		NewValue:    snapshotOf(applied.After),
		Description: fmt.Sprintf("approved change request %s: %s", cr.ID, cr.Summary()),
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return applied, nil
}

// Reject marks a pending request REJECTED. The catalog is not touched.
func (s *ModerationService) Reject(ctx context.Context, moderatorID, requestID, comment string) (*entities.ChangeRequest, error) {
	if err := s.gate.RequirePermission(ctx, moderatorID, entities.RoleModerator); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) < s.policy.MinRejectComment {
		return nil, domainErr.NewValidationError("comment", "must be at least %d characters", s.policy.MinRejectComment)
	}

	var rejected *entities.ChangeRequest
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		rejected, err = s.requests.MarkRejected(ctx, requestID, moderatorID, comment)
		if err != nil {
			return err
		}
		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      moderatorID,
			ActionType:  entities.ReviewAction(rejected.EntityType, entities.ActionRejected),
			EntityType:  string(rejected.EntityType),
			EntityID:    rejected.EntityID,
			Description: fmt.Sprintf("rejected change request %s: %s", rejected.ID, comment),
		})
	})
	if err != nil {
		return nil, err
	}

	changeRequests.WithLabelValues(string(rejected.EntityType), outcomeRejected).Inc()
	log.WithFields(log.Fields{
		"request":   rejected.ID,
		"moderator": moderatorID,
	}).Info("change request rejected")
	return rejected, nil
}

// Statistics reports review activity for the last periodDays days.
func (s *ModerationService) Statistics(ctx context.Context, actorID string, periodDays int) (*Statistics, error) {
	role, err := s.gate.RoleOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entities.RoleModerator) {
		return nil, &domainErr.AuthorizationError{UserID: actorID, Required: entities.RoleModerator.String(), Actual: role.String()}
	}
	if periodDays < 1 {
		return nil, domainErr.NewValidationError("period_days", "must be at least 1")
	}

	now := timeNow().UTC()
	stats := &Statistics{PeriodDays: periodDays, Since: now.AddDate(0, 0, -periodDays)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byStatus, err := s.requests.CountByStatus(gctx, stats.Since)
		stats.ByStatus = byStatus
		return err
	})
	g.Go(func() error {
		byType, err := s.requests.CountByEntityType(gctx, stats.Since)
		stats.ByEntityType = byType
		return err
	})
	g.Go(func() error {
		avg, err := s.requests.AverageReviewTime(gctx, stats.Since)
		stats.AverageReviewTime = avg
		return err
	})
	g.Go(func() error {
		_, total, err := s.requests.ListChangeRequests(gctx, entities.ChangeRequestFilter{Status: entities.StatusPending, Limit: 1})
		stats.PendingTotal = total
		return err
	})
	if role.AtLeast(entities.RoleAdmin) {
		g.Go(func() error {
			n, err := s.requests.CountPurgeable(gctx, s.retentionCutoff(now, s.policy.RetentionFloorDays))
			stats.PurgeableCount = &n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collecting statistics: %w", err)
	}
	return stats, nil
}

// PurgeOld deletes reviewed requests older than daysOld days. Only admins
// may purge, and daysOld may not be below the retention floor.
func (s *ModerationService) PurgeOld(ctx context.Context, adminID string, daysOld int) (*PurgeResult, error) {
	if err := s.gate.RequirePermission(ctx, adminID, entities.RoleAdmin); err != nil {
		return nil, err
	}
	if daysOld < s.policy.RetentionFloorDays {
		return nil, domainErr.NewValidationError("days_old", "must be at least %d", s.policy.RetentionFloorDays)
	}

	result := &PurgeResult{Cutoff: s.retentionCutoff(timeNow().UTC(), daysOld)}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		deleted, err := s.requests.PurgeChangeRequests(ctx, result.Cutoff)
		if err != nil {
			return err
		}
		result.Deleted = deleted
		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:     adminID,
			ActionType: entities.ActionRequestsPurged,
			EntityType: entities.AuditSubjectRequests,
			NewValue: map[string]any{
				"deleted":  deleted,
				"cutoff":   result.Cutoff.Format(time.RFC3339),
				"days_old": daysOld,
			},
			Description: fmt.Sprintf("purged %d change requests reviewed before %s", deleted, result.Cutoff.Format(time.DateOnly)),
		})
	})
	if err != nil {
		return nil, err
	}

	requestsPurged.Add(float64(result.Deleted))
	log.WithFields(log.Fields{
		"admin":   adminID,
		"deleted": result.Deleted,
		"cutoff":  result.Cutoff,
	}).Info("change requests purged")
	return result, nil
}

// SimilarEntities returns catalog records that resemble the change a
// pending request proposes. Empty when no similarity index is configured.
func (s *ModerationService) SimilarEntities(ctx context.Context, moderatorID, requestID string, limit int) ([]entities.SimilarEntity, error) {
	if err := s.gate.RequirePermission(ctx, moderatorID, entities.RoleModerator); err != nil {
		return nil, err
	}
	cr, err := s.requests.FindChangeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if s.similarity == nil {
		return []entities.SimilarEntity{}, nil
	}

	fields := cr.Payload
	if cr.Operation == entities.OpDelete {
		fields = cr.PriorSnapshot
	}
	return s.similarity.FindSimilar(ctx, cr.EntityType, entities.Describe(cr.EntityType, fields), limit, cr.EntityID)
}

func (s *ModerationService) retentionCutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

func (s *ModerationService) syncIndex(ctx context.Context, op entities.OperationType, t entities.EntityType, applied ApplyResult) {
	if s.similarity != nil {
		s.similarity.Sync(ctx, op, t, applied)
	}
}
