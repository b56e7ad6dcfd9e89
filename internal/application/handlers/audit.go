package handlers

import (
	"context"
	"time"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// AuditHandler reads the audit trail for export.
type AuditHandler struct {
	service *services.AuditService
	now     func() time.Time
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{service: service, now: time.Now}
}

// AuditQuery narrows an export. SinceDays of zero means no lower bound.
type AuditQuery struct {
	UserID     string
	ActionType string
	EntityType string
	EntityID   string
	SinceDays  int
	Limit      int
}

// HandleHistory returns matching audit records newest first.
func (h *AuditHandler) HandleHistory(ctx context.Context, adminID string, q AuditQuery) ([]entities.AuditRecord, error) {
	filter := entities.AuditFilter{
		UserID:     q.UserID,
		ActionType: q.ActionType,
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		Limit:      q.Limit,
	}
	if q.SinceDays > 0 {
		filter.Since = h.now().AddDate(0, 0, -q.SinceDays)
	}
	return h.service.History(ctx, adminID, filter)
}
