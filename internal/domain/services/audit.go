package services

import (
	"context"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// AuditService reads the audit trail. Writing happens inside the services
// that perform the audited action.
type AuditService struct {
	trail ports.AuditTrail
	gate  *AccessGate
}

// NewAuditService creates a new AuditService.
func NewAuditService(trail ports.AuditTrail, gate *AccessGate) *AuditService {
	return &AuditService{trail: trail, gate: gate}
}

// History lists audit records newest first. Admins only, since the trail
// includes account administration.
func (s *AuditService) History(ctx context.Context, adminID string, filter entities.AuditFilter) ([]entities.AuditRecord, error) {
	if err := s.gate.RequirePermission(ctx, adminID, entities.RoleAdmin); err != nil {
		return nil, err
	}
	return s.trail.ListAudit(ctx, filter)
}
