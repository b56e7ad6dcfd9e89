package entities

import (
	"fmt"
	"strings"
)

// Role is an ordered privilege level. Higher values include the rights of
// lower ones.
type Role int

// Roles in ascending order of privilege.
const (
	RoleUser      Role = 1
	RoleModerator Role = 2
	RoleAdmin     Role = 3
)

// Roles lists every valid role in ascending order.
var Roles = []Role{RoleUser, RoleModerator, RoleAdmin}

// String returns the canonical upper-case name.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleModerator:
		return "MODERATOR"
	case RoleAdmin:
		return "ADMIN"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	return r >= RoleUser && r <= RoleAdmin
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	return r.IsValid() && r >= required
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USER":
		return RoleUser, nil
	case "MODERATOR":
		return RoleModerator, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("invalid role %q (valid: USER, MODERATOR, ADMIN)", s)
	}
}
