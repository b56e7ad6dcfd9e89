package entities

import (
	"fmt"
	"strings"
	"time"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

// EntityType is the closed set of catalog entity kinds under moderation.
type EntityType string

// Catalog entity types.
const (
	EntityPerson   EntityType = "PERSON"
	EntityCountry  EntityType = "COUNTRY"
	EntityEvent    EntityType = "EVENT"
	EntityDocument EntityType = "DOCUMENT"
	EntitySource   EntityType = "SOURCE"
)

// EntityTypes lists every entity type.
var EntityTypes = []EntityType{EntityPerson, EntityCountry, EntityEvent, EntityDocument, EntitySource}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityPerson, EntityCountry, EntityEvent, EntityDocument, EntitySource:
		return true
	}
	return false
}

// ParseEntityType parses an entity type case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", domainErr.NewValidationError("entity_type", "unknown entity type %q", s)
	}
	return t, nil
}

// OperationType is the kind of change a request proposes.
type OperationType string

// Operation types.
const (
	OpCreate OperationType = "CREATE"
	OpUpdate OperationType = "UPDATE"
	OpDelete OperationType = "DELETE"
)

// IsValid reports whether op is a known operation.
func (op OperationType) IsValid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// ParseOperation parses an operation type case-insensitively.
func ParseOperation(s string) (OperationType, error) {
	op := OperationType(strings.ToUpper(strings.TrimSpace(s)))
	if !op.IsValid() {
		return "", domainErr.NewValidationError("operation_type", "unknown operation %q", s)
	}
	return op, nil
}

// Status is the lifecycle state of a change request.
type Status string

// Request states. PENDING is initial, the others are terminal.
const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", domainErr.NewValidationError("status", "unknown status %q", s)
	}
	return st, nil
}

// DeleteReasonKey is the only payload key a DELETE request may carry.
const DeleteReasonKey = "reason"

// ChangeRequest is a proposed mutation of one catalog entity, awaiting review.
type ChangeRequest struct {
	ID             string         `json:"id"`
	EntityType     EntityType     `json:"entity_type"`
	Operation      OperationType  `json:"operation_type"`
	EntityID       string         `json:"entity_id,omitempty"`
	RequesterID    string         `json:"requester_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	PriorSnapshot  map[string]any `json:"prior_snapshot,omitempty"`
	RequestComment string         `json:"request_comment,omitempty"`
	Status         Status         `json:"status"`
	ReviewerID     string         `json:"reviewer_id,omitempty"`
	ReviewComment  string         `json:"review_comment,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Validate checks the entity/operation combination and the entity id rule.
// Payload contents are checked separately against the catalog kind.
func (cr *ChangeRequest) Validate() error {
	if strings.TrimSpace(cr.RequesterID) == "" {
		return domainErr.NewValidationError("requester_id", "is required")
	}
	if !cr.EntityType.IsValid() {
		return domainErr.NewValidationError("entity_type", "unknown entity type %q", cr.EntityType)
	}
	if !cr.Operation.IsValid() {
		return domainErr.NewValidationError("operation_type", "unknown operation %q", cr.Operation)
	}

	switch cr.Operation {
	case OpCreate:
		if cr.EntityID != "" {
			return domainErr.NewValidationError("entity_id", "must be empty for CREATE")
		}
		if len(cr.Payload) == 0 {
			return domainErr.NewValidationError("payload", "is required for CREATE")
		}
	case OpUpdate:
		if cr.EntityID == "" {
			return domainErr.NewValidationError("entity_id", "is required for UPDATE")
		}
		if len(cr.Payload) == 0 {
			return domainErr.NewValidationError("payload", "is required for UPDATE")
		}
	case OpDelete:
		if cr.EntityID == "" {
			return domainErr.NewValidationError("entity_id", "is required for DELETE")
		}
		for key := range cr.Payload {
			if key != DeleteReasonKey {
				return domainErr.NewValidationError("payload", "DELETE may only carry %q, got %q", DeleteReasonKey, key)
			}
		}
	}

	if cr.Status != "" && !cr.Status.IsValid() {
		return domainErr.NewValidationError("status", "unknown status %q", cr.Status)
	}
	return nil
}

// Summary returns a one-line description used in audit records and listings.
func (cr *ChangeRequest) Summary() string {
	if cr.EntityID == "" {
		return fmt.Sprintf("%s %s", cr.Operation, cr.EntityType)
	}
	return fmt.Sprintf("%s %s %s", cr.Operation, cr.EntityType, cr.EntityID)
}

// ChangeRequestFilter narrows a request listing. Zero values mean "any".
type ChangeRequestFilter struct {
	EntityType  EntityType
	Status      Status
	RequesterID string
	Offset      int
	Limit       int
}
