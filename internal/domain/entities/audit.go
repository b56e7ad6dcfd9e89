package entities

import "time"

// AuditRecord is one immutable line of the audit trail.
// An empty UserID marks a system action.
type AuditRecord struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	ActionType  string         `json:"action_type"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id,omitempty"`
	OldValue    map[string]any `json:"old_value,omitempty"`
	NewValue    map[string]any `json:"new_value,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	UserID     string
	ActionType string
	EntityType string
	EntityID   string
	Since      time.Time
	Limit      int
	Offset     int
}

// Action suffixes combined with an entity type into an audit tag.
const (
	ActionApproved    = "APPROVED"
	ActionRejected    = "REJECTED"
	ActionApplyFailed = "APPLY_FAILED"
)

// Audit tags not bound to a catalog entity type.
const (
	ActionRequestsPurged = "CHANGE_REQUESTS_PURGED"
	ActionUserRegistered = "USER_REGISTERED"
	ActionUserRoleChange = "USER_ROLE_CHANGED"

	// AuditSubjectRequests and AuditSubjectUser fill EntityType for
	// records that are not about a catalog entity.
	AuditSubjectRequests = "CHANGE_REQUEST"
	AuditSubjectUser     = "USER"
)

// ReviewAction returns tags like PERSON_APPROVED.
func ReviewAction(t EntityType, suffix string) string {
	return string(t) + "_" + suffix
}

// RequestedAction returns tags like PERSON_UPDATE_REQUESTED.
func RequestedAction(t EntityType, op OperationType) string {
	return string(t) + "_" + string(op) + "_REQUESTED"
}

// AppliedAction returns tags like PERSON_CREATED for direct mutations.
func AppliedAction(t EntityType, op OperationType) string {
	switch op {
	case OpCreate:
		return string(t) + "_CREATED"
	case OpUpdate:
		return string(t) + "_UPDATED"
	default:
		return string(t) + "_DELETED"
	}
}
